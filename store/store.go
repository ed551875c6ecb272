// Package store defines the known-devices store: the mapping from a
// device address to the friendly name an installer gave it. The
// gateway consults it so monitor output reads "Lounge TRV" instead of
// "04:056778".
//
// Two implementations live in the subpackages: memory for tests and
// throwaway sessions, file for installations that want names to
// survive a restart.
package store

import "github.com/risa-org/ramses2/ramses"

// Store is the contract both implementations satisfy. The gateway only
// ever talks to this interface — it never imports memory or file
// directly.
type Store interface {
	// Get returns the device record for an address.
	// The second return is false when the address is unknown.
	Get(id ramses.Address) (ramses.Device, bool)

	// Put stores or replaces a device record.
	Put(d ramses.Device) error

	// Delete removes a record. Deleting an unknown address is a no-op.
	Delete(id ramses.Address) error

	// All returns every record, in no particular order.
	All() []ramses.Device

	// Len returns the number of records. Useful for observability and testing.
	Len() int
}
