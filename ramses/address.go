package ramses

import (
	"errors"
	"fmt"
)

// ErrInvalidAddress is returned when a token is not a well-formed
// device address.
var ErrInvalidAddress = errors.New("invalid device address")

// Address identifies one device on the radio network, in the wire form
// "TT:DDDDDD" — a two-digit class followed by a six-digit decimal id.
// The string is the canonical representation; there is nothing more to
// a device identity than these nine characters.
type Address string

const (
	// NulAddress fills the unused slots of a packet's three-address
	// block. It never identifies a real device.
	NulAddress Address = "--:------"

	// GatewayAddress is the fixed source address the serial gateway
	// stamps on frames it transmits. Commands default to it.
	GatewayAddress Address = "18:000730"
)

// ParseAddress validates the wire form. The nul address is accepted —
// it is a legal slot filler even though it names no device.
func ParseAddress(s string) (Address, error) {
	if s == string(NulAddress) {
		return NulAddress, nil
	}
	if len(s) != 9 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(s), nil
}

// Class returns the two-digit device class ("01" for a controller).
// Returns "" for the nul address.
func (a Address) Class() string {
	if a.IsNul() || len(a) < 2 {
		return ""
	}
	return string(a[:2])
}

// IsNul reports whether this is the slot-filler address.
func (a Address) IsNul() bool {
	return a == NulAddress || a == ""
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
