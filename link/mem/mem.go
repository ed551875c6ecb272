// Package mem provides an in-memory link pair for tests and examples.
// Pair() returns two Links wired back to back: frames written on one
// side arrive on the other, closing either side disconnects both.
// No sockets, no serial devices — just channels.
package mem

import (
	"sync"

	"github.com/risa-org/ramses2/link"
)

// Link is one end of an in-memory pair.
type Link struct {
	out        chan []byte // frames this end writes; the peer's Frames()
	in         chan []byte // frames the peer writes; this end's Frames()
	disconnect chan link.DisconnectEvent
	peer       *Link
	closeOnce  sync.Once
	mu         sync.Mutex // guards closed and sends on out
	closed     bool
}

// Pair creates two connected links. A frame written on a is received
// on b and vice versa. Closing either side ends both, cleanly.
func Pair() (a, b *Link) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &Link{out: ab, in: ba, disconnect: make(chan link.DisconnectEvent, 1)}
	b = &Link{out: ba, in: ab, disconnect: make(chan link.DisconnectEvent, 1)}
	a.peer, b.peer = b, a
	return a, b
}

// WriteFrame hands one line to the peer. The frame is copied, so the
// caller may reuse its buffer.
func (l *Link) WriteFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return link.ErrLinkClosed
	}
	f := make([]byte, len(frame))
	copy(f, frame)
	l.out <- f
	return nil
}

// Frames returns the channel of frames written by the peer.
// Closed when the peer side closes.
func (l *Link) Frames() <-chan []byte {
	return l.in
}

// Disconnected returns a channel that emits exactly one event when the
// pair ends. Both ends report ReasonClosedClean — there is no wire to
// fail in memory.
func (l *Link) Disconnected() <-chan link.DisconnectEvent {
	return l.disconnect
}

// Close shuts down both ends of the pair. Safe to call multiple times,
// from either side, in any order.
//
// Each end closes only the channel it writes on — the sole-sender rule
// that keeps close and a concurrent WriteFrame from racing.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.out)
		l.mu.Unlock()

		select {
		case l.disconnect <- link.DisconnectEvent{Reason: link.ReasonClosedClean}:
		default:
		}

		// take the peer down too — one wire, two ends
		go l.peer.Close()
	})
	return nil
}
