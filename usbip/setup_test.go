package usbip

import "testing"

func TestParseSetupPacket(t *testing.T) {
	// GET_DESCRIPTOR(Device), device-to-host, standard, device recipient.
	raw := []byte{0x80, RequestGetDescriptor, 0x00, DescriptorTypeDevice, 0x00, 0x00, 0x12, 0x00}
	s, err := ParseSetupPacket(raw)
	if err != nil {
		t.Fatalf("ParseSetupPacket: %v", err)
	}
	if !s.IsDeviceToHost() || !s.IsStandard() || !s.IsDeviceRecipient() {
		t.Fatalf("decoded wrong bmRequestType fields: %+v", s)
	}
	if s.DescriptorType() != DescriptorTypeDevice {
		t.Errorf("DescriptorType() = %d, want %d", s.DescriptorType(), DescriptorTypeDevice)
	}
	if s.Length != 0x12 {
		t.Errorf("Length = %d, want 18", s.Length)
	}
}

func TestParseSetupPacketTooShort(t *testing.T) {
	if _, err := ParseSetupPacket([]byte{1, 2, 3}); err != ErrMalformedFrame {
		t.Fatalf("ParseSetupPacket on short input: got err %v, want ErrMalformedFrame", err)
	}
}

func TestSetupPacketMarshalRoundTrip(t *testing.T) {
	s := SetupPacket{RequestType: 0x21, Request: 0x09, Value: 0x0300, Index: 0x0002, Length: 7}
	buf := make([]byte, SetupPacketSize)
	if n := s.MarshalTo(buf); n != SetupPacketSize {
		t.Fatalf("MarshalTo wrote %d bytes, want %d", n, SetupPacketSize)
	}
	got, err := ParseSetupPacket(buf)
	if err != nil {
		t.Fatalf("ParseSetupPacket: %v", err)
	}
	if got != s {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, s)
	}
}

func TestSetupPacketRecipientAndType(t *testing.T) {
	s := SetupPacket{RequestType: RequestTypeClass | RequestRecipientInterface}
	if !s.IsClass() || !s.IsInterfaceRecipient() {
		t.Fatalf("decoded wrong type/recipient: %+v", s)
	}
	if s.IsStandard() || s.IsDeviceRecipient() {
		t.Fatalf("unexpectedly matched standard/device: %+v", s)
	}
}
