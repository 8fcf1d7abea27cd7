package usbip

import "sync"

// Endpoint transfer types (USB 2.0 Spec Table 9-13, bmAttributes bits 0-1).
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Endpoint direction bit within an endpoint address.
const (
	EndpointDirectionOut = 0x00
	EndpointDirectionIn  = 0x80
)

// Endpoint is one addressable source or sink on a device. Endpoint 0 (the
// control endpoint) exists implicitly on every device and is not stored in
// an Interface's endpoint list.
type Endpoint struct {
	Address       uint8 // 4-bit number | direction bit
	Attributes    uint8 // bmAttributes (transfer type + iso sync/usage bits)
	MaxPacketSize uint16
	Interval      uint8

	mu         sync.Mutex
	stalled    bool
	dataToggle bool
}

// NewEndpoint builds an Endpoint from its wire descriptor fields.
func NewEndpoint(address, attributes uint8, maxPacketSize uint16, interval uint8) *Endpoint {
	return &Endpoint{Address: address, Attributes: attributes, MaxPacketSize: maxPacketSize, Interval: interval}
}

// Number returns the endpoint number (0-15), without the direction bit.
func (e *Endpoint) Number() uint8 { return e.Address & 0x0F }

// Direction returns EndpointDirectionIn or EndpointDirectionOut.
func (e *Endpoint) Direction() uint8 { return e.Address & 0x80 }

func (e *Endpoint) IsIn() bool  { return e.Direction() == EndpointDirectionIn }
func (e *Endpoint) IsOut() bool { return e.Direction() == EndpointDirectionOut }

// TransferType returns the endpoint's transfer type.
func (e *Endpoint) TransferType() uint8 { return e.Attributes & 0x03 }

func (e *Endpoint) IsControl() bool     { return e.TransferType() == EndpointTypeControl }
func (e *Endpoint) IsBulk() bool        { return e.TransferType() == EndpointTypeBulk }
func (e *Endpoint) IsInterrupt() bool   { return e.TransferType() == EndpointTypeInterrupt }
func (e *Endpoint) IsIsochronous() bool { return e.TransferType() == EndpointTypeIsochronous }

// SetStall sets or clears the endpoint's halt condition.
func (e *Endpoint) SetStall(stall bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stalled = stall
	if stall {
		e.dataToggle = false
	}
}

// IsStalled reports the endpoint's current halt condition.
func (e *Endpoint) IsStalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stalled
}

// ToggleData flips the endpoint's DATA0/DATA1 toggle and returns the new value.
func (e *Endpoint) ToggleData() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dataToggle = !e.dataToggle
	return e.dataToggle
}

// ResetDataToggle resets the endpoint's data toggle to DATA0.
func (e *Endpoint) ResetDataToggle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dataToggle = false
}

// Descriptor returns the wire descriptor for this endpoint.
func (e *Endpoint) Descriptor() EndpointDescriptor {
	return EndpointDescriptor{
		BEndpointAddress: e.Address,
		BmAttributes:     e.Attributes,
		WMaxPacketSize:   e.MaxPacketSize,
		BInterval:        e.Interval,
	}
}
