package usbip

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MaxStrings bounds the string descriptor table's index range (index 0 is
// the LANGID array; indices 1..MaxStrings-1 are host-unicode strings).
const MaxStrings = 16

// State is a device's position in the USB 2.0 device state machine
// (USB 2.0 Spec Chapter 9.1).
type State int

const (
	StateAttached State = iota
	StatePowered
	StateDefault
	StateAddress
	StateConfigured
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateAttached:
		return "attached"
	case StatePowered:
		return "powered"
	case StateDefault:
		return "default"
	case StateAddress:
		return "address"
	case StateConfigured:
		return "configured"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Device is one simulated USB device: a bus-id, dev-id, descriptor, a set
// of configurations, and the mutable state (address, active configuration,
// suspend) the protocol engine drives on its behalf.
type Device struct {
	BusID string
	DevID uint32
	Speed Speed

	Descriptor DeviceDescriptor

	BusNum uint32
	DevNum uint32
	Path   string

	logger  log.Logger
	metrics *Metrics

	mu                  sync.RWMutex
	configurations      []*Configuration
	activeConfig        *Configuration
	state               State
	previousState       State
	strings             [MaxStrings]string
	remoteWakeupEnabled bool
	attachedConn        string // opaque identifier of the owning connection, "" if free
}

// NewDevice constructs a Device in the Attached state. logger may be nil.
func NewDevice(busID string, devID uint32, desc DeviceDescriptor, speed Speed, logger log.Logger) *Device {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	d := &Device{
		BusID:      busID,
		DevID:      devID,
		Speed:      speed,
		Descriptor: desc,
		logger:     log.With(logger, "component", "device", "bus_id", busID),
		state:      StateAttached,
	}
	d.Descriptor.BMaxPacketSize0 = speed.MaxPacketSize0()
	return d
}

// SetMetrics attaches the collectors MarkAttached/MarkDetached update. It is
// optional; a device with no metrics set simply doesn't report them.
func (d *Device) SetMetrics(metrics *Metrics) {
	d.metrics = metrics
}

// AddConfiguration appends a configuration to the device.
func (d *Device) AddConfiguration(c *Configuration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configurations = append(d.configurations, c)
	d.Descriptor.BNumConfigurations = uint8(len(d.configurations))
}

// GetConfiguration returns the configuration with the given value, or nil.
func (d *Device) GetConfiguration(value uint8) *Configuration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.configurations {
		if c.Value == value {
			return c
		}
	}
	return nil
}

// Configurations returns a snapshot of the device's configurations.
func (d *Device) Configurations() []*Configuration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Configuration, len(d.configurations))
	copy(out, d.configurations)
	return out
}

// ActiveConfiguration returns the currently selected configuration, or nil
// if the device is unconfigured.
func (d *Device) ActiveConfiguration() *Configuration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeConfig
}

// IsConfigured reports whether a configuration is active.
func (d *Device) IsConfigured() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeConfig != nil
}

// SetString stores the UTF-16LE-serializable string at the given index.
func (d *Device) SetString(index uint8, s string) {
	if index == 0 || int(index) >= MaxStrings {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strings[index] = s
}

// GetString returns the string at index, and whether it was set.
func (d *Device) GetString(index uint8) (string, bool) {
	if int(index) >= MaxStrings {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.strings[index]
	return s, s != ""
}

func (d *Device) setState(s State) {
	d.mu.Lock()
	d.previousState = d.state
	d.state = s
	d.mu.Unlock()
	level.Debug(d.logger).Log("msg", "device state transition", "state", s.String())
}

// State returns the device's current state.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// MarkAttached records that this device has been imported by a connection,
// identified opaquely by connID. Returns ErrAlreadyAttached if another
// connection already holds it.
func (d *Device) MarkAttached(connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attachedConn != "" && d.attachedConn != connID {
		return ErrAlreadyAttached
	}
	d.attachedConn = connID
	d.state = StateDefault
	d.metrics.deviceAttached()
	return nil
}

// MarkDetached releases the device so a future import may succeed. It is a
// no-op if connID does not currently hold the device.
func (d *Device) MarkDetached(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attachedConn != connID {
		return
	}
	d.attachedConn = ""
	d.activeConfig = nil
	d.state = StateAttached
	d.metrics.deviceDetached()
}

// SetConfiguration implements SET_CONFIGURATION: value 0 unconfigures the
// device (back to the Address state); any other value must name an existing
// configuration, selecting it and transitioning to Configured.
func (d *Device) SetConfiguration(value uint8) error {
	if value == 0 {
		d.mu.Lock()
		d.activeConfig = nil
		d.mu.Unlock()
		d.setState(StateAddress)
		return nil
	}
	cfg := d.GetConfiguration(value)
	if cfg == nil {
		return ErrInvalidConfiguration
	}
	d.mu.Lock()
	d.activeConfig = cfg
	d.mu.Unlock()
	d.setState(StateConfigured)
	return nil
}

// CurrentConfigurationValue returns the active configuration's value, or 0.
func (d *Device) CurrentConfigurationValue() uint8 {
	if c := d.ActiveConfiguration(); c != nil {
		return c.Value
	}
	return 0
}

// EnableRemoteWakeup sets or clears the device-remote-wakeup feature.
func (d *Device) EnableRemoteWakeup(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remoteWakeupEnabled = enabled
}

// IsRemoteWakeupEnabled reports the device-remote-wakeup feature state.
func (d *Device) IsRemoteWakeupEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.remoteWakeupEnabled
}

// FindEndpoint locates the interface owning the endpoint at the given
// address within the active configuration, for URB routing. EP0 is handled
// by the caller before reaching here.
func (d *Device) FindEndpoint(address uint8) (*Interface, *Endpoint) {
	cfg := d.ActiveConfiguration()
	if cfg == nil {
		return nil, nil
	}
	for _, iface := range cfg.Interfaces() {
		if ep := iface.GetEndpoint(address); ep != nil {
			return iface, ep
		}
	}
	return nil, nil
}

// DeviceBlock renders the 312-byte wire summary of this device for
// OP_REP_DEVLIST / OP_REP_IMPORT.
func (d *Device) DeviceBlock() DeviceBlock {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var blk DeviceBlock
	copy(blk.Path[:], d.Path)
	copy(blk.BusID[:], d.BusID)
	blk.BusNum = d.BusNum
	blk.DevNum = d.DevNum
	blk.Speed = uint32(d.Speed)
	blk.IDVendor = d.Descriptor.IDVendor
	blk.IDProduct = d.Descriptor.IDProduct
	blk.BcdDevice = d.Descriptor.BcdDevice
	blk.BDeviceClass = d.Descriptor.BDeviceClass
	blk.BDeviceSubClass = d.Descriptor.BDeviceSubClass
	blk.BDeviceProtocol = d.Descriptor.BDeviceProtocol
	if d.activeConfig != nil {
		blk.BConfigurationValue = d.activeConfig.Value
	}
	blk.BNumConfigurations = uint8(len(d.configurations))
	if d.activeConfig != nil {
		blk.BNumInterfaces = uint8(len(d.activeConfig.Interfaces()))
	} else if len(d.configurations) > 0 {
		blk.BNumInterfaces = uint8(len(d.configurations[0].Interfaces()))
	}
	return blk
}

// InterfaceBlocks renders the per-interface 4-byte summaries following a
// device block in OP_REP_DEVLIST, drawn from the active configuration, or
// from the device's first configuration when none is active.
func (d *Device) InterfaceBlocks() []InterfaceBlock {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg := d.activeConfig
	if cfg == nil && len(d.configurations) > 0 {
		cfg = d.configurations[0]
	}
	if cfg == nil {
		return nil
	}
	ifaces := cfg.Interfaces()
	blocks := make([]InterfaceBlock, len(ifaces))
	for i, iface := range ifaces {
		blocks[i] = InterfaceBlock{
			BInterfaceClass:    iface.Class,
			BInterfaceSubClass: iface.SubClass,
			BInterfaceProtocol: iface.Protocol,
		}
	}
	return blocks
}
