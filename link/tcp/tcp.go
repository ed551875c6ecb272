// Package tcp is the bridged-gateway link: a RAMSES dongle exposed on
// the network by ser2net or similar, raw packet lines over a TCP
// stream.
package tcp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/risa-org/ramses2/link"
)

// Link implements link.Link over a TCP connection.
//
// Wire format is the gateway's own: one packet line per frame,
// newline-terminated. TCP is a stream protocol with no message
// boundaries of its own, but the gateway dialect is already
// line-oriented, so a line scanner is all the framing we need.
type Link struct {
	conn       net.Conn                  // the underlying TCP connection
	frames     chan []byte               // delivers received lines to the caller
	disconnect chan link.DisconnectEvent // signals when the connection ends
	closeOnce  sync.Once                 // guarantees cleanup runs exactly once
	writeMu    sync.Mutex                // one writer at a time, TCP writes are not concurrent-safe
}

// Dial connects to a bridged gateway at addr ("host:port") and wraps
// the connection. Immediately starts a read loop goroutine.
func Dial(addr string) (*Link, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an existing net.Conn. The conn must already be established
// — dialing or accepting happens outside. Immediately starts a read
// loop goroutine in the background.
func New(conn net.Conn) *Link {
	l := &Link{
		conn:       conn,
		frames:     make(chan []byte, 64),              // buffered so the reader doesn't block on slow consumers
		disconnect: make(chan link.DisconnectEvent, 1), // buffered so the writer never blocks
	}

	// start reading in the background immediately
	// this goroutine runs until the connection closes
	go l.readLoop()

	return l
}

// WriteFrame writes one line plus terminator to the connection.
// Uses writeMu to ensure only one goroutine writes at a time.
func (l *Link) WriteFrame(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame...)
	out = append(out, '\r', '\n')

	if _, err := l.conn.Write(out); err != nil {
		return link.ErrLinkClosed
	}
	return nil
}

// Frames returns the channel of received lines.
// Range over this channel to process lines as they arrive.
// The channel is closed when the connection closes.
func (l *Link) Frames() <-chan []byte {
	return l.frames
}

// Disconnected returns a channel that emits exactly one event when
// the connection ends, for any reason.
func (l *Link) Disconnected() <-chan link.DisconnectEvent {
	return l.disconnect
}

// Close shuts down the TCP connection cleanly.
// Safe to call multiple times — cleanup runs exactly once due to sync.Once.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}

// readLoop runs in a goroutine and continuously reads lines from the
// connection. When the connection ends it signals disconnect and exits.
func (l *Link) readLoop() {
	// whatever happens, when this function returns we clean up
	defer func() {
		close(l.frames) // signal to Frames() callers that we're done
		l.Close()       // ensure the connection is closed
	}()

	scanner := bufio.NewScanner(l.conn)
	for scanner.Scan() {
		// Scanner strips the \n; trim a trailing \r from CRLF gateways.
		line := scanner.Bytes()
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 {
			continue // blank keepalive lines are common on bridges
		}

		// copy — the scanner reuses its buffer on the next Scan
		frame := make([]byte, len(line))
		copy(frame, line)

		l.frames <- frame
	}

	l.signalDisconnect(scanner.Err())
}

// signalDisconnect figures out the reason the connection ended and
// sends exactly one event on the disconnect channel.
func (l *Link) signalDisconnect(err error) {
	event := link.DisconnectEvent{}

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		// scanner finishing without an error means EOF — the remote
		// side closed cleanly, and our own Close lands here too
		event.Reason = link.ReasonClosedClean
	} else {
		event.Reason = link.ReasonReadError
		event.Err = err
	}

	// non-blocking send — channel is buffered(1) so this never blocks
	// if somehow disconnect was already sent, we don't send again
	select {
	case l.disconnect <- event:
	default:
	}
}
