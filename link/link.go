// Package link defines the byte-link contract at the bottom of the
// stack: something that moves newline-framed packet lines to and from
// a RAMSES radio gateway. Concrete links live in the subpackages —
// serialport for the real dongle, tcp and ws for bridged gateways,
// mem for tests.
package link

import "errors"

// ErrLinkClosed is returned when you try to write on a closed link.
// Named errors like this let callers check the exact cause with
// errors.Is() instead of comparing raw strings — which is fragile and
// breaks easily.
var ErrLinkClosed = errors.New("link closed")

// DisconnectReason tells the packet layer why a link ended.
// This feeds directly into observability — the logs say whether a
// monitor stopped because the dongle vanished or because someone
// closed it on purpose.
type DisconnectReason int

const (
	ReasonUnknown     DisconnectReason = iota // catch-all, should be rare
	ReasonReadError                           // the underlying device or connection failed
	ReasonClosedClean                         // graceful shutdown by either side
)

// DisconnectEvent is sent on the channel returned by Disconnected().
// It bundles the reason with an optional error for debugging.
type DisconnectEvent struct {
	Reason DisconnectReason
	Err    error // nil on clean close, populated on errors
}

// Link is the contract every byte link must satisfy. The packet layer
// only ever talks to this interface — it never imports serialport,
// tcp, ws, or anything concrete.
//
// A frame is one packet line without its terminator. Links own line
// framing in both directions: WriteFrame appends the terminator, the
// read side strips it.
type Link interface {
	// WriteFrame delivers one line to the gateway.
	// Returns ErrLinkClosed if the link is no longer usable.
	WriteFrame(frame []byte) error

	// Frames returns the channel of received lines.
	// The channel is closed when the link ends.
	// Callers should range over it and stop when it closes.
	Frames() <-chan []byte

	// Disconnected returns a channel that emits exactly one
	// DisconnectEvent when the link ends, for any reason.
	Disconnected() <-chan DisconnectEvent

	// Close shuts the link down cleanly.
	// Safe to call multiple times — subsequent calls are no-ops.
	Close() error
}
