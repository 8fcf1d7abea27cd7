package usbip

import "sync"

// ClassHandler is the endpoint handler contract every emulated device class
// implements (§4.4). One ClassHandler instance owns every endpoint of one
// interface.
type ClassHandler interface {
	// Init is called once, when the handler is attached to its Interface.
	Init(iface *Interface) error

	// HandleURB services a transfer on one of the interface's endpoints.
	// setup is non-nil only for control transfers routed here because the
	// standard request handler did not claim them. data is the OUT payload
	// already received (for OUT transfers) or a capacity to fill (for IN
	// transfers). HandleURB must observe ctx.Done() and return promptly,
	// with ErrCancelled, if the caller cancels.
	//
	// The returned byte count is the actual transfer length; it may be
	// less than len(data) for IN transfers that have less to report.
	HandleURB(ctx Canceller, ep *Endpoint, setup *SetupPacket, data []byte) (int, error)

	// SetAlternate is invoked when the host selects a different alternate
	// setting for the interface via SET_INTERFACE.
	SetAlternate(iface *Interface, alt uint8) error

	Close() error
}

// Canceller is the minimal cancellation surface a ClassHandler needs. It is
// satisfied by context.Context; kept as its own interface so this package's
// core types don't force a context import on every caller that only reads
// descriptors.
type Canceller interface {
	Done() <-chan struct{}
	Err() error
}

// Interface groups a set of endpoints under one USB interface descriptor
// and the class handler servicing them.
type Interface struct {
	Number           uint8
	AlternateSetting uint8
	Class            uint8
	SubClass         uint8
	Protocol         uint8
	StringIndex      uint8

	// ClassDescriptor is an opaque blob (e.g. a HID report descriptor or a
	// CDC functional descriptor set) appended after this interface's
	// descriptor inside the configuration concatenation. Nil if none.
	ClassDescriptor []byte

	mu        sync.RWMutex
	endpoints []*Endpoint
	handler   ClassHandler
}

// NewInterface builds an Interface with no endpoints and no handler yet.
func NewInterface(number, class, subClass, protocol uint8) *Interface {
	return &Interface{Number: number, Class: class, SubClass: subClass, Protocol: protocol}
}

// AddEndpoint appends ep to the interface's endpoint list.
func (i *Interface) AddEndpoint(ep *Endpoint) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.endpoints = append(i.endpoints, ep)
}

// Endpoints returns a snapshot of the interface's endpoints.
func (i *Interface) Endpoints() []*Endpoint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*Endpoint, len(i.endpoints))
	copy(out, i.endpoints)
	return out
}

// GetEndpoint returns the endpoint with the given full address (number and
// direction bit), or nil.
func (i *Interface) GetEndpoint(address uint8) *Endpoint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, ep := range i.endpoints {
		if ep.Address == address {
			return ep
		}
	}
	return nil
}

// SetHandler attaches the class handler that services this interface's
// endpoints, calling Init on it.
func (i *Interface) SetHandler(h ClassHandler) error {
	i.mu.Lock()
	i.handler = h
	i.mu.Unlock()
	if h != nil {
		return h.Init(i)
	}
	return nil
}

// Handler returns the interface's class handler, or nil.
func (i *Interface) Handler() ClassHandler {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.handler
}

// Descriptor returns the wire descriptor for this interface.
func (i *Interface) Descriptor() InterfaceDescriptor {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return InterfaceDescriptor{
		BInterfaceNumber:   i.Number,
		BAlternateSetting:  i.AlternateSetting,
		BNumEndpoints:      uint8(len(i.endpoints)),
		BInterfaceClass:    i.Class,
		BInterfaceSubClass: i.SubClass,
		BInterfaceProtocol: i.Protocol,
		IInterface:         i.StringIndex,
	}
}

// Configuration groups a set of interfaces under one USB configuration
// descriptor.
type Configuration struct {
	Value          uint8
	SelfPowered    bool
	RemoteWakeup   bool
	MaxPower       uint8
	StringIndex    uint8

	mu           sync.RWMutex
	interfaces   []*Interface
	associations []InterfaceAssociationDescriptor
}

// NewConfiguration builds an empty Configuration with the given (1-based)
// configuration value.
func NewConfiguration(value uint8) *Configuration {
	return &Configuration{Value: value}
}

// AddInterface appends iface to the configuration.
func (c *Configuration) AddInterface(iface *Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interfaces = append(c.interfaces, iface)
}

// Interfaces returns a snapshot of the configuration's interfaces.
func (c *Configuration) Interfaces() []*Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Interface, len(c.interfaces))
	copy(out, c.interfaces)
	return out
}

// GetInterface returns the interface with the given number, or nil.
func (c *Configuration) GetInterface(number uint8) *Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, iface := range c.interfaces {
		if iface.Number == number {
			return iface
		}
	}
	return nil
}

// AddAssociation appends an Interface Association Descriptor grouping a
// range of this configuration's interfaces into one composite function.
func (c *Configuration) AddAssociation(iad InterfaceAssociationDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.associations = append(c.associations, iad)
}

func (c *Configuration) attributes() uint8 {
	attr := uint8(ConfigAttrReserved)
	if c.SelfPowered {
		attr |= ConfigAttrSelfPowered
	}
	if c.RemoteWakeup {
		attr |= ConfigAttrRemoteWakeup
	}
	return attr
}

// totalLength computes wTotalLength: the configuration header plus every
// IAD, interface, and endpoint descriptor concatenated after it.
func (c *Configuration) totalLength() int {
	total := ConfigurationDescriptorSize
	total += len(c.associations) * InterfaceAssociationDescriptorSize
	for _, iface := range c.interfaces {
		total += InterfaceDescriptorSize + len(iface.ClassDescriptor)
		total += len(iface.Endpoints()) * EndpointDescriptorSize
	}
	return total
}

// MarshalTo serializes the full configuration descriptor tree (header, then
// IADs, then each interface with its class descriptor and endpoints) into
// buf in the order a USB host expects to parse it, and returns the number
// of bytes written.
func (c *Configuration) MarshalTo(buf []byte) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.totalLength()
	if len(buf) < total {
		return 0
	}

	hdr := ConfigurationDescriptor{
		WTotalLength:        uint16(total),
		BNumInterfaces:      uint8(len(c.interfaces)),
		BConfigurationValue: c.Value,
		IConfiguration:      c.StringIndex,
		BmAttributes:        c.attributes(),
		BMaxPower:           c.MaxPower,
	}
	off := hdr.MarshalTo(buf)

	for _, iad := range c.associations {
		off += iad.MarshalTo(buf[off:])
	}

	for _, iface := range c.interfaces {
		id := iface.Descriptor()
		off += id.MarshalTo(buf[off:])
		if len(iface.ClassDescriptor) > 0 {
			n := copy(buf[off:], iface.ClassDescriptor)
			off += n
		}
		for _, ep := range iface.Endpoints() {
			ed := ep.Descriptor()
			off += ed.MarshalTo(buf[off:])
		}
	}
	return off
}
