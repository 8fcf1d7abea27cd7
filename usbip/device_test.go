package usbip

import "testing"

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d := NewDevice("1-1", 1, DeviceDescriptor{IDVendor: 0x1209, IDProduct: 0x0001}, SpeedFull, nil)
	cfg := NewConfiguration(1)
	iface := NewInterface(0, ClassHID, 0, 0)
	iface.AddEndpoint(NewEndpoint(0x81, EndpointTypeInterrupt, 8, 10))
	cfg.AddInterface(iface)
	d.AddConfiguration(cfg)
	return d
}

func TestDeviceAttachDetach(t *testing.T) {
	d := newTestDevice(t)
	if err := d.MarkAttached("conn-a"); err != nil {
		t.Fatalf("MarkAttached: %v", err)
	}
	if err := d.MarkAttached("conn-b"); err != ErrAlreadyAttached {
		t.Fatalf("second MarkAttached: got %v, want ErrAlreadyAttached", err)
	}
	if err := d.MarkAttached("conn-a"); err != nil {
		t.Fatalf("re-attaching same connection should succeed: %v", err)
	}

	d.MarkDetached("conn-b") // no-op: conn-b never held it
	if err := d.MarkAttached("conn-b"); err != ErrAlreadyAttached {
		t.Fatalf("stale detach should not have released the device: %v", err)
	}

	d.MarkDetached("conn-a")
	if err := d.MarkAttached("conn-b"); err != nil {
		t.Fatalf("MarkAttached after proper detach: %v", err)
	}
}

func TestDeviceSetConfiguration(t *testing.T) {
	d := newTestDevice(t)
	if err := d.SetConfiguration(1); err != nil {
		t.Fatalf("SetConfiguration(1): %v", err)
	}
	if !d.IsConfigured() {
		t.Fatal("device should be configured")
	}
	if d.State() != StateConfigured {
		t.Errorf("state = %v, want %v", d.State(), StateConfigured)
	}

	if err := d.SetConfiguration(99); err != ErrInvalidConfiguration {
		t.Fatalf("SetConfiguration(99): got %v, want ErrInvalidConfiguration", err)
	}

	if err := d.SetConfiguration(0); err != nil {
		t.Fatalf("SetConfiguration(0): %v", err)
	}
	if d.IsConfigured() {
		t.Fatal("device should be unconfigured after SetConfiguration(0)")
	}
	if d.State() != StateAddress {
		t.Errorf("state = %v, want %v", d.State(), StateAddress)
	}
}

func TestDeviceFindEndpoint(t *testing.T) {
	d := newTestDevice(t)
	if _, ep := d.FindEndpoint(0x81); ep != nil {
		t.Fatal("FindEndpoint should fail before a configuration is active")
	}
	if err := d.SetConfiguration(1); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}
	iface, ep := d.FindEndpoint(0x81)
	if iface == nil || ep == nil {
		t.Fatal("FindEndpoint(0x81) found nothing after configuring")
	}
	if ep.Address != 0x81 {
		t.Errorf("endpoint address = 0x%02x, want 0x81", ep.Address)
	}
	if _, ep := d.FindEndpoint(0x02); ep != nil {
		t.Error("FindEndpoint matched an endpoint that does not exist")
	}
}

func TestDeviceBlockFields(t *testing.T) {
	d := newTestDevice(t)
	d.BusNum, d.DevNum, d.Path = 2, 5, "/sys/x"
	blk := d.DeviceBlock()
	if blk.IDVendor != 0x1209 || blk.IDProduct != 0x0001 {
		t.Errorf("unexpected vendor/product in block: %+v", blk)
	}
	if blk.BusNum != 2 || blk.DevNum != 5 {
		t.Errorf("unexpected bus/dev numbers: %+v", blk)
	}
	if blk.BNumConfigurations != 1 {
		t.Errorf("bNumConfigurations = %d, want 1", blk.BNumConfigurations)
	}
}
