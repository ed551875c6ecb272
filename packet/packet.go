// Package packet is the packet layer: it turns raw link frames into
// structurally valid ramses.Packet values on the way in, and renders
// ramses.Command values into gateway lines on the way out.
//
// It sits between a link.Link (bytes) and a transport.MessageTransport
// (messages). The message transport's dispatcher calls SendData; the
// read loop here calls the transport's PktReceiver.
package packet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/link"
	"github.com/risa-org/ramses2/ramses"
)

// PacketHandler receives every structurally valid inbound packet.
// The message transport's PktReceiver satisfies this.
type PacketHandler func(*ramses.Packet)

// Option configures a Protocol at construction.
type Option func(*Protocol)

// WithTap installs a tap that sees every valid packet before the main
// handler. The traffic log hangs off this — observation must not sit
// in the delivery path's way, so a nil-safe side call is all it gets.
func WithTap(tap PacketHandler) Option {
	return func(p *Protocol) { p.tap = tap }
}

// Protocol is the packet-layer protocol bound to one link.
//
// Inbound: a background read loop parses each frame; lines that are
// not packets — collisions, truncations, the dongle's own chatter —
// are dropped here with a debug log, exactly once, so nothing above
// this layer ever sees a malformed packet.
//
// Outbound: SendData renders one command per call. The write mutex
// keeps frames whole; the radio is half-duplex and interleaved writes
// would corrupt both.
type Protocol struct {
	link    link.Link
	recv    PacketHandler
	tap     PacketHandler
	log     *zap.Logger
	writeMu sync.Mutex
}

// New builds the protocol and starts its read loop. recv is invoked on
// the read-loop goroutine for every valid packet, in arrival order.
func New(l link.Link, recv PacketHandler, log *zap.Logger, opts ...Option) *Protocol {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Protocol{
		link: l,
		recv: recv,
		log:  log,
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.readLoop()
	return p
}

// SendData renders cmd and writes it to the link. This is the sink the
// message transport dispatches into — it returns only when the frame
// has been handed to the link, which is what makes the dispatcher's
// one-command-in-flight guarantee mean something.
//
// The context is checked before the write; the write itself is not
// cancellable (a half-written serial frame is worse than a late one).
func (p *Protocol) SendData(ctx context.Context, cmd *ramses.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	frame := cmd.Frame()
	if err := p.link.WriteFrame([]byte(frame)); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}

	p.log.Debug("packet sent", zap.String("frame", frame))
	return nil
}

// Done returns the link's disconnect channel — it emits exactly one
// event when the link ends, for any reason. The gateway's run loop
// waits on this to tell a clean close from a failed dongle.
func (p *Protocol) Done() <-chan link.DisconnectEvent {
	return p.link.Disconnected()
}

// Close closes the underlying link. The read loop drains and exits.
func (p *Protocol) Close() error {
	return p.link.Close()
}

func (p *Protocol) readLoop() {
	for frame := range p.link.Frames() {
		pkt, err := ramses.ParsePacket(string(frame), time.Now())
		if err != nil {
			// routine — radio noise produces garbage lines constantly
			p.log.Debug("dropped line", zap.ByteString("line", frame), zap.Error(err))
			continue
		}

		if p.tap != nil {
			p.tap(pkt)
		}
		if p.recv != nil {
			p.recv(pkt)
		}
	}
}
