package file

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/risa-org/ramses2/ramses"
)

// Store is a file-backed implementation of store.Store. Device names
// are persisted to a JSON file and survive restarts. All reads are
// served from the in-memory cache; every mutation flushes to disk.
//
// The file is a plain array of device records, indented so installers
// can also just edit it by hand with the gateway stopped.
type Store struct {
	mu      sync.RWMutex
	path    string
	devices map[ramses.Address]ramses.Device
}

// New creates a file-backed store at the given path.
// If the file exists, devices are loaded from it on startup.
// If it doesn't exist, it will be created on first write.
func New(path string) (*Store, error) {
	s := &Store{
		path:    path,
		devices: make(map[ramses.Address]ramses.Device),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load devices from %s: %w", path, err)
	}

	return s, nil
}

// Get retrieves a device record from the cache.
func (s *Store) Get(id ramses.Address) (ramses.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}

// Put stores or replaces a record and flushes to disk.
func (s *Store) Put(d ramses.Device) error {
	s.mu.Lock()
	s.devices[d.ID] = d
	err := s.flush()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist device %s: %w", d.ID, err)
	}
	return nil
}

// Delete removes a record and flushes to disk.
func (s *Store) Delete(id ramses.Address) error {
	s.mu.Lock()
	delete(s.devices, id)
	err := s.flush()
	s.mu.Unlock()
	return err
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

// load reads devices from the JSON file into memory.
// Called once at startup. If the file doesn't exist, returns nil — empty store.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // fresh start, no file yet
	}
	if err != nil {
		return err
	}

	var records []ramses.Device
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	for _, d := range records {
		s.devices[d.ID] = d
	}

	return nil
}

// flush writes the current in-memory state to the JSON file.
// Must be called with the write lock held.
func (s *Store) flush() error {
	records := make([]ramses.Device, 0, len(s.devices))
	for _, d := range s.devices {
		records = append(records, d)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// write to a temp file then rename — atomic on most systems
	// prevents corrupt file if process crashes mid-write
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
