package class

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/MatthiasValvekens/usbip-device-plugin/usbip"
)

func TestKeyboardPressKeyDeliveredToInterruptIn(t *testing.T) {
	k := NewKeyboard(nil)
	ep := usbip.NewEndpoint(0x81, usbip.EndpointTypeInterrupt, 8, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	report := [8]byte{0x00, 0x00, 0x04} // 'a' keycode in slot 0
	k.PressKey(report)

	buf := make([]byte, 8)
	n, err := k.HandleURB(ctx, ep, nil, buf)
	if err != nil {
		t.Fatalf("HandleURB: %v", err)
	}
	if n != 8 || !bytes.Equal(buf, report[:]) {
		t.Fatalf("got report %v (n=%d), want %v", buf, n, report)
	}
}

func TestKeyboardHandleURBCancelled(t *testing.T) {
	k := NewKeyboard(nil)
	ep := usbip.NewEndpoint(0x81, usbip.EndpointTypeInterrupt, 8, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := k.HandleURB(ctx, ep, nil, make([]byte, 8))
	if err != usbip.ErrCancelled {
		t.Fatalf("HandleURB on cancelled context: got %v, want ErrCancelled", err)
	}
}

func TestKeyboardGetReportControlRequest(t *testing.T) {
	k := NewKeyboard(nil)
	setup := usbip.SetupPacket{RequestType: 0xA1, Request: HIDRequestGetReport}
	buf := make([]byte, 8)
	n, err := k.HandleURB(context.Background(), &usbip.Endpoint{}, &setup, buf)
	if err != nil || n != 8 {
		t.Fatalf("GET_REPORT: n=%d err=%v", n, err)
	}
}

func TestKeyboardInitSetsClassDescriptor(t *testing.T) {
	k := NewKeyboard(nil)
	iface := usbip.NewInterface(0, usbip.ClassHID, 1, 1)
	if err := k.Init(iface); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(iface.ClassDescriptor) != 9 {
		t.Fatalf("ClassDescriptor length = %d, want 9", len(iface.ClassDescriptor))
	}
}

func TestKeyboardSetAlternateRejectsNonZero(t *testing.T) {
	k := NewKeyboard(nil)
	iface := usbip.NewInterface(0, usbip.ClassHID, 1, 1)
	if err := k.SetAlternate(iface, 1); err != usbip.ErrStall {
		t.Fatalf("SetAlternate(1): got %v, want ErrStall", err)
	}
	if err := k.SetAlternate(iface, 0); err != nil {
		t.Fatalf("SetAlternate(0): %v", err)
	}
}
