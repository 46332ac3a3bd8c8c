package device

import (
	"sort"
	"sync"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
)

// Registry assigns small integer ids to probed devices, always handing out
// the lowest free one.
type Registry struct {
	mu      sync.Mutex
	limit   int
	devices map[int]*Device
}

// NewRegistry creates a registry holding at most limit devices
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = driver.MaxDevices
	}
	return &Registry{limit: limit, devices: make(map[int]*Device)}
}

// Add registers d and returns its id
func (r *Registry) Add(d *Device) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := 0; id < r.limit; id++ {
		if _, taken := r.devices[id]; !taken {
			r.devices[id] = d
			d.id.Store(int32(id))
			return id, nil
		}
	}
	return -1, ErrRegistryFull
}

// Lookup returns the device registered under id
func (r *Registry) Lookup(id int) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, driver.Errorf(driver.StatusNotFound, "device %d not registered", id)
	}
	return d, nil
}

// Remove unregisters id and removes the device. The id becomes free again.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !ok {
		return driver.Errorf(driver.StatusNotFound, "device %d not registered", id)
	}
	d.Remove()
	return nil
}

// IDs returns the registered ids in ascending order
func (r *Registry) IDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Close removes every registered device
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		r.Remove(id)
	}
}
