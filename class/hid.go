// Package class provides reference implementations of the endpoint handler
// contract (usbip.ClassHandler) for two common USB device classes: HID
// keyboards and CDC-ACM serial ports. Neither is part of the protocol core;
// they exist to exercise the contract end to end and as a starting point
// for other emulated devices.
package class

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/MatthiasValvekens/usbip-device-plugin/usbip"
)

// HID descriptor type codes (USB HID 1.11 Spec).
const (
	DescriptorTypeHID    = 0x21
	DescriptorTypeReport = 0x22
)

// HIDRequestGetReport and friends are the class-specific requests a HID
// interface must answer on EP0 (USB HID 1.11 Spec §7.2).
const (
	HIDRequestGetReport = 0x01
	HIDRequestGetIdle   = 0x02
	HIDRequestSetReport = 0x09
	HIDRequestSetIdle   = 0x0A
)

// bootKeyboardReportDescriptor is the standard 6-key rollover boot keyboard
// report descriptor (USB HID Usage Tables, Boot Interface Subclass).
var bootKeyboardReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x06, 0xA1, 0x01, 0x05, 0x07,
	0x19, 0xE0, 0x29, 0xE7, 0x15, 0x00, 0x25, 0x01,
	0x75, 0x01, 0x95, 0x08, 0x81, 0x02, 0x95, 0x01,
	0x75, 0x08, 0x81, 0x01, 0x95, 0x05, 0x75, 0x01,
	0x05, 0x08, 0x19, 0x01, 0x29, 0x05, 0x91, 0x02,
	0x95, 0x01, 0x75, 0x03, 0x91, 0x01, 0x95, 0x06,
	0x75, 0x08, 0x15, 0x00, 0x25, 0x65, 0x05, 0x07,
	0x19, 0x00, 0x29, 0x65, 0x81, 0x00, 0xC0,
}

// KeyboardDescriptor returns the 9-byte HID descriptor to append to the
// interface's descriptor in the configuration concatenation (§4.1's
// "opaque byte blob" extension point).
func KeyboardDescriptor() []byte {
	n := len(bootKeyboardReportDescriptor)
	return []byte{
		9, DescriptorTypeHID,
		0x11, 0x01, // bcdHID 1.11
		0x00,       // bCountryCode: not localized
		0x01,       // bNumDescriptors
		DescriptorTypeReport,
		byte(n), byte(n >> 8),
	}
}

// Keyboard is a reference HID boot-keyboard handler. It owns one interrupt
// IN endpoint delivering 8-byte key reports; reports are injected by
// PressKey into a queue of up to four reports and delivered to the next
// HandleURB call on the interrupt endpoint. A report arriving while the
// queue is full is dropped.
type Keyboard struct {
	logger  log.Logger
	reports chan [8]byte
}

// NewKeyboard builds a Keyboard handler. logger may be nil.
func NewKeyboard(logger log.Logger) *Keyboard {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Keyboard{logger: log.With(logger, "component", "hid-keyboard"), reports: make(chan [8]byte, 4)}
}

// PressKey delivers one 8-byte HID boot-keyboard report (modifier byte,
// reserved byte, six keycodes) to the next interrupt IN transfer.
func (k *Keyboard) PressKey(report [8]byte) {
	select {
	case k.reports <- report:
	default:
		level.Warn(k.logger).Log("msg", "report dropped: no reader and queue full")
	}
}

func (k *Keyboard) Init(iface *usbip.Interface) error {
	iface.ClassDescriptor = KeyboardDescriptor()
	return nil
}

func (k *Keyboard) HandleURB(ctx usbip.Canceller, ep *usbip.Endpoint, setup *usbip.SetupPacket, data []byte) (int, error) {
	if setup != nil {
		return k.handleControl(*setup, data)
	}
	if ep.IsIn() && ep.IsInterrupt() {
		select {
		case report := <-k.reports:
			n := copy(data, report[:])
			return n, nil
		case <-ctx.Done():
			return 0, usbip.ErrCancelled
		}
	}
	return 0, usbip.ErrStall
}

func (k *Keyboard) handleControl(setup usbip.SetupPacket, data []byte) (int, error) {
	switch setup.Request {
	case HIDRequestGetReport:
		if len(data) < 8 {
			return 0, usbip.ErrStall
		}
		return 8, nil // all-zero report: no keys held
	case HIDRequestSetReport, HIDRequestGetIdle, HIDRequestSetIdle:
		return 0, nil
	case 0x06: // GET_DESCRIPTOR(Report), recipient interface
		n := copy(data, bootKeyboardReportDescriptor)
		return n, nil
	default:
		return 0, usbip.ErrStall
	}
}

func (k *Keyboard) SetAlternate(iface *usbip.Interface, alt uint8) error {
	if alt != 0 {
		return usbip.ErrStall
	}
	return nil
}

func (k *Keyboard) Close() error {
	return nil
}
