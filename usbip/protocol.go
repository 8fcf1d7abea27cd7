// Package usbip implements a USB/IP server: a USB/IP wire protocol engine,
// a USB descriptor model, and the standard-request handling needed to let a
// Linux usbip client attach to and drive simulated USB devices.
package usbip

import "fmt"

// Protocol version and operation codes (USB/IP spec, Phase 1).
const (
	ProtocolVersion = 0x0111

	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003
)

// URB command codes (USB/IP spec, Phase 2). Phase 2 headers are big-endian.
const (
	CmdSubmit    = 0x00000001
	CmdUnlink    = 0x00000002
	RetSubmit    = 0x00000003
	RetUnlink    = 0x00000004
)

// Transfer directions as carried in the 20-byte URB header.
const (
	DirOut = 0
	DirIn  = 1
)

// OpHeader is the 8-byte header that begins every Phase 1 operation frame.
type OpHeader struct {
	Version uint16
	Code    uint16
	Status  uint32
}

func (h OpHeader) String() string {
	return fmt.Sprintf("OpHeader{Version: 0x%04x, Code: 0x%04x, Status: 0x%08x}", h.Version, h.Code, h.Status)
}

// DeviceBlockSize is the fixed size, in bytes, of the device block embedded
// in OP_REP_DEVLIST and OP_REP_IMPORT responses.
const DeviceBlockSize = 312

// DeviceBlock is the wire layout of a single device entry in OP_REP_DEVLIST
// and OP_REP_IMPORT. Field order and sizes are load-bearing: the Linux usbip
// client decodes this struct byte-for-byte.
type DeviceBlock struct {
	Path                [256]byte
	BusID               [32]byte
	BusNum              uint32
	DevNum              uint32
	Speed               uint32
	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8
}

// InterfaceBlock is the 4-byte per-interface summary appended after a
// DeviceBlock in OP_REP_DEVLIST.
type InterfaceBlock struct {
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	Reserved           uint8
}

// URBHeader is the 20-byte header common to every Phase 2 frame.
type URBHeader struct {
	Command        uint32
	SequenceNumber uint32
	DevID          uint32
	Direction      uint32
	Endpoint       uint32
}

// SubmitBody carries the 28 additional header bytes of USBIP_CMD_SUBMIT,
// immediately following a URBHeader.
type SubmitBody struct {
	TransferFlags        uint32
	TransferBufferLength uint32
	StartFrame           uint32
	NumberOfPackets      uint32
	Interval             uint32
	Setup                [8]byte
}

// UnlinkBody carries the 28 additional bytes of USBIP_CMD_UNLINK.
type UnlinkBody struct {
	UnlinkSeqNum uint32
	Reserved     [24]byte
}

// RetSubmitBody is the 28-byte trailer of USBIP_RET_SUBMIT.
type RetSubmitBody struct {
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Reserved        uint64
}

// RetUnlinkBody is the 28-byte trailer of USBIP_RET_UNLINK.
type RetUnlinkBody struct {
	Status   int32
	Reserved [24]byte
}

// IsoPacketDescriptor is one entry of the per-packet descriptor array
// attached to isochronous submissions and their completions.
type IsoPacketDescriptor struct {
	Offset       uint32
	Length       uint32
	ActualLength uint32
	Status       uint32
}
