package usbip

import "encoding/binary"

// USB descriptor type codes (USB 2.0 Spec Table 9-5, plus the class-neutral
// extras a composite device needs).
const (
	DescriptorTypeDevice                  = 0x01
	DescriptorTypeConfiguration           = 0x02
	DescriptorTypeString                  = 0x03
	DescriptorTypeInterface               = 0x04
	DescriptorTypeEndpoint                = 0x05
	DescriptorTypeDeviceQualifier         = 0x06
	DescriptorTypeOtherSpeedConfiguration = 0x07
	DescriptorTypeInterfaceAssociation    = 0x0B
)

// USB device/interface class codes actually used by the reference class
// handlers shipped in package class.
const (
	ClassPerInterface = 0x00
	ClassCDC          = 0x02
	ClassHID          = 0x03
	ClassCDCData      = 0x0A
)

// Speed codes as carried in a DeviceBlock. Only a SpeedHigh device answers
// GET_DESCRIPTOR for the device qualifier and other-speed configuration.
type Speed uint32

const (
	SpeedLow Speed = iota
	SpeedFull
	SpeedHigh
	SpeedSuper
)

// MaxPacketSize0 returns the conventional EP0 max packet size for a speed.
func (s Speed) MaxPacketSize0() uint8 {
	switch s {
	case SpeedLow:
		return 8
	case SpeedHigh, SpeedSuper:
		return 64
	default:
		return 64
	}
}

// DeviceDescriptorSize is the fixed length of a USB device descriptor.
const DeviceDescriptorSize = 18

// DeviceDescriptor is the 18-byte descriptor returned for GET_DESCRIPTOR(Device).
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

// MarshalTo writes the 18-byte little-endian wire form of d into buf.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(buf[2:4], d.BcdUSB)
	buf[4] = d.BDeviceClass
	buf[5] = d.BDeviceSubClass
	buf[6] = d.BDeviceProtocol
	buf[7] = d.BMaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.IDVendor)
	binary.LittleEndian.PutUint16(buf[10:12], d.IDProduct)
	binary.LittleEndian.PutUint16(buf[12:14], d.BcdDevice)
	buf[14] = d.IManufacturer
	buf[15] = d.IProduct
	buf[16] = d.ISerialNumber
	buf[17] = d.BNumConfigurations
	return DeviceDescriptorSize
}

// ConfigurationDescriptorSize is the fixed length of the configuration
// descriptor header (excluding nested interface/endpoint descriptors).
const ConfigurationDescriptorSize = 9

// Configuration attribute bits (USB 2.0 Spec Table 9-10).
const (
	ConfigAttrReserved    = 0x80 // must always be set
	ConfigAttrSelfPowered = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// ConfigurationDescriptor is the 9-byte header preceding a configuration's
// interface and endpoint descriptors.
type ConfigurationDescriptor struct {
	WTotalLength        uint16
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BmAttributes        uint8
	BMaxPower            uint8
}

// MarshalTo writes the 9-byte little-endian configuration descriptor header.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ConfigurationDescriptorSize {
		return 0
	}
	buf[0] = ConfigurationDescriptorSize
	buf[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(buf[2:4], c.WTotalLength)
	buf[4] = c.BNumInterfaces
	buf[5] = c.BConfigurationValue
	buf[6] = c.IConfiguration
	buf[7] = c.BmAttributes
	buf[8] = c.BMaxPower
	return ConfigurationDescriptorSize
}

// InterfaceDescriptorSize is the fixed length of an interface descriptor.
const InterfaceDescriptorSize = 9

// InterfaceDescriptor is the 9-byte descriptor for one interface/alt-setting.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

// MarshalTo writes the 9-byte interface descriptor.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceDescriptorSize {
		return 0
	}
	buf[0] = InterfaceDescriptorSize
	buf[1] = DescriptorTypeInterface
	buf[2] = i.BInterfaceNumber
	buf[3] = i.BAlternateSetting
	buf[4] = i.BNumEndpoints
	buf[5] = i.BInterfaceClass
	buf[6] = i.BInterfaceSubClass
	buf[7] = i.BInterfaceProtocol
	buf[8] = i.IInterface
	return InterfaceDescriptorSize
}

// EndpointDescriptorSize is the fixed length of an endpoint descriptor.
const EndpointDescriptorSize = 7

// EndpointDescriptor is the 7-byte descriptor for one endpoint.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BmAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

// MarshalTo writes the 7-byte little-endian endpoint descriptor.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointDescriptorSize {
		return 0
	}
	buf[0] = EndpointDescriptorSize
	buf[1] = DescriptorTypeEndpoint
	buf[2] = e.BEndpointAddress
	buf[3] = e.BmAttributes
	binary.LittleEndian.PutUint16(buf[4:6], e.WMaxPacketSize)
	buf[6] = e.BInterval
	return EndpointDescriptorSize
}

// InterfaceAssociationDescriptorSize is the fixed length of an IAD.
const InterfaceAssociationDescriptorSize = 8

// InterfaceAssociationDescriptor groups the interfaces of one composite
// USB function (e.g. CDC-ACM's control+data interface pair).
type InterfaceAssociationDescriptor struct {
	BFirstInterface   uint8
	BInterfaceCount   uint8
	BFunctionClass    uint8
	BFunctionSubClass uint8
	BFunctionProtocol uint8
	IFunction         uint8
}

// MarshalTo writes the 8-byte IAD.
func (a *InterfaceAssociationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceAssociationDescriptorSize {
		return 0
	}
	buf[0] = InterfaceAssociationDescriptorSize
	buf[1] = DescriptorTypeInterfaceAssociation
	buf[2] = a.BFirstInterface
	buf[3] = a.BInterfaceCount
	buf[4] = a.BFunctionClass
	buf[5] = a.BFunctionSubClass
	buf[6] = a.BFunctionProtocol
	buf[7] = a.IFunction
	return InterfaceAssociationDescriptorSize
}

// LangIDUSEnglish is the language identifier reported at string index 0.
const LangIDUSEnglish = 0x0409

// LanguageDescriptorTo serializes a LANGID array (string descriptor index 0)
// into buf, returning the number of bytes written.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	n := 2 + 2*len(langIDs)
	if len(buf) < n {
		return 0
	}
	buf[0] = uint8(n)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+2*i:4+2*i], id)
	}
	return n
}

// StringDescriptorTo encodes s as a UTF-16LE string descriptor into buf,
// truncating if the result would not fit in a single byte's length field.
func StringDescriptorTo(buf []byte, s string) int {
	runes := []rune(s)
	units := make([]uint16, 0, len(runes))
	for _, r := range runes {
		if r > 0xFFFF {
			r = '?'
		}
		units = append(units, uint16(r))
		if 2+2*len(units) > 255 {
			units = units[:len(units)-1]
			break
		}
	}
	n := 2 + 2*len(units)
	if len(buf) < n {
		return 0
	}
	buf[0] = uint8(n)
	buf[1] = DescriptorTypeString
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2+2*i:4+2*i], u)
	}
	return n
}
