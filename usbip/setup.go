package usbip

import (
	"encoding/binary"
	"fmt"
)

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors (USB 2.0 Spec Table 9-6).
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
)

// bmRequestType bit masks (USB 2.0 Spec Table 9-2).
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F
)

const (
	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80
)

const (
	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40
)

const (
	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
	RequestRecipientOther     = 0x03
)

// SetupPacketSize is the fixed length of a USB setup packet.
const SetupPacketSize = 8

// SetupPacket is the 8-byte header that initiates a control transfer. Fields
// are decoded little-endian, as they are transmitted on the bus itself (the
// USB/IP Phase-2 header wrapping this packet is big-endian, but the setup
// bytes it carries are not re-encoded).
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetupPacket decodes 8 bytes into a SetupPacket. It is a pure function:
// it has no side effects and never mutates data.
func ParseSetupPacket(data []byte) (SetupPacket, error) {
	var s SetupPacket
	if len(data) < SetupPacketSize {
		return s, ErrMalformedFrame
	}
	s.RequestType = data[0]
	s.Request = data[1]
	s.Value = binary.LittleEndian.Uint16(data[2:4])
	s.Index = binary.LittleEndian.Uint16(data[4:6])
	s.Length = binary.LittleEndian.Uint16(data[6:8])
	return s, nil
}

// MarshalTo serializes the setup packet back to its 8-byte wire form.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

func (s SetupPacket) Direction() uint8 { return s.RequestType & RequestTypeDirectionMask }
func (s SetupPacket) IsDeviceToHost() bool { return s.Direction() == RequestDirectionDeviceToHost }
func (s SetupPacket) IsHostToDevice() bool { return s.Direction() == RequestDirectionHostToDevice }

func (s SetupPacket) Type() uint8     { return s.RequestType & RequestTypeTypeMask }
func (s SetupPacket) IsStandard() bool { return s.Type() == RequestTypeStandard }
func (s SetupPacket) IsClass() bool    { return s.Type() == RequestTypeClass }
func (s SetupPacket) IsVendor() bool   { return s.Type() == RequestTypeVendor }

func (s SetupPacket) Recipient() uint8 { return s.RequestType & RequestTypeRecipientMask }
func (s SetupPacket) IsDeviceRecipient() bool    { return s.Recipient() == RequestRecipientDevice }
func (s SetupPacket) IsInterfaceRecipient() bool { return s.Recipient() == RequestRecipientInterface }
func (s SetupPacket) IsEndpointRecipient() bool  { return s.Recipient() == RequestRecipientEndpoint }

// DescriptorType returns the descriptor type requested by wValue's high byte.
func (s SetupPacket) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex returns the descriptor index from wValue's low byte.
func (s SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value & 0xFF) }

// InterfaceNumber returns the interface number carried in wIndex.
func (s SetupPacket) InterfaceNumber() uint8 { return uint8(s.Index & 0xFF) }

// EndpointAddress returns the endpoint address carried in wIndex.
func (s SetupPacket) EndpointAddress() uint8 { return uint8(s.Index & 0xFF) }

func (s SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	return fmt.Sprintf("SETUP[%s] bRequest=0x%02x wValue=0x%04x wIndex=0x%04x wLength=%d",
		dir, s.Request, s.Value, s.Index, s.Length)
}
