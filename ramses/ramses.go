// Package ramses defines the value types that flow through the stack:
// addresses, verbs, priorities, outbound Commands, inbound Packets and
// the Messages built from them.
//
// Everything here is plain data plus validation — no goroutines, no I/O.
// The transport and packet layers move these values around; decoding
// payloads into heating semantics happens above this library.
package ramses

import (
	"errors"
	"fmt"
)

// ErrInvalidVerb is returned when a token is not one of the four verbs.
// Named errors like this let callers check the exact cause with
// errors.Is() instead of matching message strings.
var ErrInvalidVerb = errors.New("invalid verb")

// Verb is the two-character packet verb. RAMSES-II has exactly four.
// I and W are space-padded on the wire, and we keep that padding so a
// Verb can be dropped into a frame or a header without reformatting.
type Verb string

const (
	VerbI  Verb = " I" // unsolicited broadcast / information
	VerbRQ Verb = "RQ" // request
	VerbRP Verb = "RP" // reply to a request
	VerbW  Verb = " W" // write (command a device to change state)
)

// ParseVerb normalizes a verb token. Accepts both the padded wire form
// (" I") and the bare form ("I") that a fields-split produces.
func ParseVerb(s string) (Verb, error) {
	switch s {
	case "I", " I":
		return VerbI, nil
	case "RQ":
		return VerbRQ, nil
	case "RP":
		return VerbRP, nil
	case "W", " W":
		return VerbW, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVerb, s)
}

// replyVerb maps an outbound verb to the verb its reply arrives with.
// RQ is answered by RP, W is confirmed by I. I and RP stand for
// themselves — useful when correlating an echo rather than a reply.
func replyVerb(v Verb) Verb {
	switch v {
	case VerbRQ:
		return VerbRP
	case VerbW:
		return VerbI
	}
	return v
}

// Priority orders outbound commands. Lower dispatches earlier.
// The gaps leave room for finer-grained levels without renumbering.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 2
	PriorityDefault Priority = 4
	PriorityLow     Priority = 6
	PriorityLowest  Priority = 8
)

// deviceClasses maps the two-digit address class to its conventional
// short name. The set is fixed by the protocol — these are the device
// families seen in the wild, not something applications extend.
var deviceClasses = map[string]string{
	"01": "CTL", // main controller (evotouch)
	"02": "UFC", // underfloor heating controller
	"03": "STA", // wall thermostat
	"04": "TRV", // radiator valve actuator
	"07": "DHW", // hot-water cylinder sensor
	"10": "OTB", // OpenTherm bridge
	"12": "THM", // room thermostat
	"13": "BDR", // wireless relay box
	"17": "OUT", // outside weather sensor
	"18": "HGI", // the serial radio gateway itself
	"22": "THM", // programmable room thermostat
	"30": "RFG", // internet gateway
	"34": "STA", // round thermostat
}

// ClassName returns the short device-family name for a two-digit
// address class, or "???" when the class is not a known family.
func ClassName(class string) string {
	if name, ok := deviceClasses[class]; ok {
		return name
	}
	return "???"
}

// Device is one entry in a known-devices store: a device id plus the
// friendly name an installer gave it. Class is derived from the id and
// stored so the file form is readable without this package.
type Device struct {
	ID    Address `json:"id"`
	Name  string  `json:"name"`
	Class string  `json:"class,omitempty"`
}

// NewDevice builds a Device for the given address, deriving its class
// name from the address prefix.
func NewDevice(id Address, name string) Device {
	return Device{ID: id, Name: name, Class: ClassName(id.Class())}
}
