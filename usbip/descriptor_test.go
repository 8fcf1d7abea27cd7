package usbip

import "testing"

func TestConfigurationMarshalTotalLength(t *testing.T) {
	cfg := NewConfiguration(1)
	iface := NewInterface(0, ClassHID, 1, 1)
	iface.ClassDescriptor = []byte{9, DescriptorTypeString, 0, 0, 0, 0, 0, 0, 0}
	iface.AddEndpoint(NewEndpoint(0x81, EndpointTypeInterrupt, 8, 10))
	cfg.AddInterface(iface)

	buf := make([]byte, 256)
	n := cfg.MarshalTo(buf)

	wantLen := ConfigurationDescriptorSize + InterfaceDescriptorSize + len(iface.ClassDescriptor) + EndpointDescriptorSize
	if n != wantLen {
		t.Fatalf("MarshalTo wrote %d bytes, want %d", n, wantLen)
	}

	gotTotal := uint16(buf[2]) | uint16(buf[3])<<8
	if int(gotTotal) != wantLen {
		t.Errorf("wTotalLength = %d, want %d", gotTotal, wantLen)
	}
	if buf[0] != ConfigurationDescriptorSize || buf[1] != DescriptorTypeConfiguration {
		t.Errorf("unexpected configuration header bytes: %v", buf[:2])
	}
}

func TestConfigurationMarshalTooSmallBuffer(t *testing.T) {
	cfg := NewConfiguration(1)
	cfg.AddInterface(NewInterface(0, ClassHID, 0, 0))
	if n := cfg.MarshalTo(make([]byte, 4)); n != 0 {
		t.Fatalf("MarshalTo into undersized buffer wrote %d bytes, want 0", n)
	}
}

func TestStringDescriptorRoundTripLength(t *testing.T) {
	buf := make([]byte, 64)
	n := StringDescriptorTo(buf, "usbip")
	if n != 2+2*len("usbip") {
		t.Fatalf("StringDescriptorTo wrote %d bytes, want %d", n, 2+2*len("usbip"))
	}
	if buf[1] != DescriptorTypeString {
		t.Errorf("bDescriptorType = %d, want %d", buf[1], DescriptorTypeString)
	}
}

func TestLanguageDescriptorTo(t *testing.T) {
	buf := make([]byte, 8)
	n := LanguageDescriptorTo(buf, LangIDUSEnglish)
	if n != 4 {
		t.Fatalf("LanguageDescriptorTo wrote %d bytes, want 4", n)
	}
	got := uint16(buf[2]) | uint16(buf[3])<<8
	if got != LangIDUSEnglish {
		t.Errorf("LANGID = 0x%04x, want 0x%04x", got, LangIDUSEnglish)
	}
}

func TestDeviceDescriptorMarshalTo(t *testing.T) {
	d := DeviceDescriptor{IDVendor: 0x1209, IDProduct: 0x0001, BNumConfigurations: 1}
	buf := make([]byte, DeviceDescriptorSize)
	n := d.MarshalTo(buf)
	if n != DeviceDescriptorSize {
		t.Fatalf("MarshalTo wrote %d bytes, want %d", n, DeviceDescriptorSize)
	}
	if buf[0] != DeviceDescriptorSize || buf[1] != DescriptorTypeDevice {
		t.Fatalf("unexpected header bytes: %v", buf[:2])
	}
	gotVendor := uint16(buf[8]) | uint16(buf[9])<<8
	if gotVendor != 0x1209 {
		t.Errorf("idVendor = 0x%04x, want 0x1209", gotVendor)
	}
}
