package memory

import (
	"sync"

	"github.com/risa-org/ramses2/ramses"
)

// Store is a thread-safe in-memory implementation of store.Store.
// Suitable for tests and for monitor sessions that don't care about
// names surviving a restart.
type Store struct {
	mu      sync.RWMutex
	devices map[ramses.Address]ramses.Device
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		devices: make(map[ramses.Address]ramses.Device),
	}
}

// Get retrieves a device record by address.
// Returns false if the address is unknown.
func (s *Store) Get(id ramses.Address) (ramses.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}

// Put stores or replaces a record. Never fails in memory — the error
// is there to satisfy store.Store, where the file implementation can
// genuinely fail to flush.
func (s *Store) Put(d ramses.Device) error {
	s.mu.Lock()
	s.devices[d.ID] = d
	s.mu.Unlock()
	return nil
}

// Delete removes a record. Unknown addresses are a no-op.
func (s *Store) Delete(id ramses.Address) error {
	s.mu.Lock()
	delete(s.devices, id)
	s.mu.Unlock()
	return nil
}

// All returns every record, in no particular order.
func (s *Store) All() []ramses.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ramses.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// Len returns the number of records currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}
