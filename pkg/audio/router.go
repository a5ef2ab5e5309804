package audio

import (
	"log/slog"
	"sync"
)

// Router picks an output [Device] by id and falls back to its default
// device for ids it does not know.
type Router struct {
	mu      sync.RWMutex
	def     Device
	devices map[string]Device
	warned  map[string]bool
}

// NewRouter returns a router whose default device is def. Additional
// devices are addressable by their [Device.ID].
func NewRouter(def Device, devices ...Device) *Router {
	r := &Router{
		def:     def,
		devices: make(map[string]Device, len(devices)),
		warned:  make(map[string]bool),
	}
	for _, d := range devices {
		r.devices[d.ID()] = d
	}
	return r
}

// Add registers d, replacing any device with the same id.
func (r *Router) Add(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID()] = d
}

// Device returns the device with the given id, or the default device when
// id is empty or unknown. An unknown id is logged once.
func (r *Router) Device(id string) Device {
	r.mu.RLock()
	d, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return d
	}
	if id != "" && id != r.def.ID() {
		r.mu.Lock()
		if !r.warned[id] {
			r.warned[id] = true
			slog.Warn("audio: unknown output device, using default", "device", id, "default", r.def.ID())
		}
		r.mu.Unlock()
	}
	return r.def
}

// IDs returns the ids of all registered devices, default first.
func (r *Router) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := []string{r.def.ID()}
	for id := range r.devices {
		if id != r.def.ID() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close closes every device, returning the first error.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	seen := map[Device]bool{}
	for _, d := range append([]Device{r.def}, mapValues(r.devices)...) {
		if seen[d] {
			continue
		}
		seen[d] = true
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func mapValues(m map[string]Device) []Device {
	out := make([]Device, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out
}
