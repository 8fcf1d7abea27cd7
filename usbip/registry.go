package usbip

import "sync"

// Registry holds the set of simulated devices exported by the server,
// keyed by bus-id and dev-id (§4.5). It is read-mostly: devices are added
// at startup and the registry is otherwise treated as immutable, aside
// from the per-device attached/detached bookkeeping in Device itself.
type Registry struct {
	mu        sync.RWMutex
	byBusID   map[string]*Device
	byDevID   map[uint32]*Device
	ordered   []*Device
}

// NewRegistry builds an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		byBusID: make(map[string]*Device),
		byDevID: make(map[uint32]*Device),
	}
}

// Register adds d to the registry. It is intended to be called only during
// startup, before the server begins accepting connections.
func (r *Registry) Register(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byBusID[d.BusID] = d
	r.byDevID[d.DevID] = d
	r.ordered = append(r.ordered, d)
}

// All returns every registered device, in registration order, for
// OP_REQ_DEVLIST.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByBusID looks up a device for OP_REQ_IMPORT. ok is false if no device
// with that bus-id is registered.
func (r *Registry) ByBusID(busID string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byBusID[busID]
	return d, ok
}

// ByDevID looks up a device for URB routing.
func (r *Registry) ByDevID(devID uint32) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byDevID[devID]
	return d, ok
}
