// Package transport is the message layer of the RAMSES-II stack: a
// priority-ordered outbound dispatch queue, inbound fan-out to
// subscribed protocols, and callback correlation via the registry.
//
// The shape deliberately mirrors a classic transport/protocol pair:
// the MessageTransport owns the connection-side state (queue,
// lifecycle, dispatcher), the Protocol implementations react to
// lifecycle and data events. Layers compose by dependency injection —
// there is no base class to inherit from, only the Protocol interface
// to satisfy.
package transport

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/ramses"
	"github.com/risa-org/ramses2/registry"
)

// ErrTransportClosed is returned by Write once the transport has left
// the open state. Named errors like this let callers check the exact
// cause with errors.Is() instead of comparing raw strings.
var ErrTransportClosed = errors.New("transport closed")

// ErrTooManyProtocols is returned by SetProtocol beyond the two-slot
// limit. This is a wiring mistake, not a runtime condition — two slots
// cover the only layouts that exist (a message protocol, plus at most
// one extra observer or client).
var ErrTooManyProtocols = errors.New("transport already has two protocols")

// ErrNotSupported marks transport capabilities this layer deliberately
// does not have. The radio link exposes no flow-control knobs, so
// pause-reading and write-buffer limits are programming errors to
// call, not conditions to recover from.
var ErrNotSupported = errors.New("operation not supported by this transport")

// State is the transport lifecycle. The order matters: state only ever
// moves forward, and StateClosed is terminal.
type State int

const (
	StateOpen    State = iota // accepting writes, dispatcher running
	StateClosing              // no new writes, queue still draining
	StateClosed               // dispatcher exited, protocols notified
)

// Protocol is what a MessageTransport delivers events to. The
// transport calls ConnectionMade when a protocol subscribes,
// DataReceived for every inbound message, and ConnectionLost exactly
// once when the transport shuts down.
//
// PauseWriting/ResumeWriting flow the other way conceptually — they
// gate the protocol's own senders, not the transport — but they are
// part of the contract so a transport (or a test) can throttle a
// protocol without knowing its concrete type.
type Protocol interface {
	ConnectionMade(t *MessageTransport)
	DataReceived(msg *ramses.Message)
	ConnectionLost(err error)
	PauseWriting()
	ResumeWriting()
}

// SenderProtocol is a Protocol that can also emit commands — the upper
// half of a client stack. The message transport's dispatcher can be
// pointed at its SendData.
type SenderProtocol interface {
	Protocol
	SendData(ctx context.Context, cmd *ramses.Command) error
}

// DispatchFunc is the lower-layer sink the dispatcher drains into.
// It must not return until the command has been handed off — its
// latency is what throttles the whole outbound pipeline.
type DispatchFunc func(ctx context.Context, cmd *ramses.Command) error

// MessageTransport owns the outbound queue and its single dispatcher
// goroutine, fans inbound messages out to at most two subscribed
// protocols, and runs callback correlation on every arrival.
//
// One mutex and one condition variable guard all of it. The cond is
// broadcast on every enqueue, state change and sink install, so the
// dispatcher wakes exactly when there is something to do — no polling.
type MessageTransport struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   cmdQueue
	nextSeq uint64 // FIFO tie-break counter, assigned at enqueue

	state       State
	sink        DispatchFunc
	sinkEverSet bool // Write drops commands until the first sink exists
	dispatching bool // the dispatcher goroutine has been started

	protocols []Protocol
	reg       *registry.Registry
	extra     map[string]any

	log *zap.Logger
}

// NewMessageTransport creates an open transport. p, if non-nil, is
// subscribed immediately (its ConnectionMade runs before this
// returns). reg may be nil — correlation is then simply off. A nil
// logger is fine.
func NewMessageTransport(reg *registry.Registry, p Protocol, log *zap.Logger) (*MessageTransport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &MessageTransport{
		state: StateOpen,
		reg:   reg,
		extra: make(map[string]any),
		log:   log,
	}
	t.cond = sync.NewCond(&t.mu)

	if p != nil {
		if err := t.SetProtocol(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Write enqueues one command for dispatch. Fails with
// ErrTransportClosed once Close or Abort has been called.
//
// When no dispatcher sink has ever been attached the command is
// silently dropped, not queued. A half-wired stack has nothing that
// could ever drain a queue, and buffering against a future that may
// never arrive just moves the surprise somewhere worse. Callers that
// need delivery guarantees wire the packet stack first.
func (t *MessageTransport) Write(cmd *ramses.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		return ErrTransportClosed
	}
	if !t.sinkEverSet {
		t.log.Debug("write dropped, no dispatcher attached", zap.Stringer("cmd", cmd))
		return nil
	}

	t.nextSeq++
	heap.Push(&t.queue, queued{cmd: cmd, seq: t.nextSeq})
	t.cond.Broadcast()
	return nil
}

// SetDispatcher installs or replaces the lower-layer sink. The first
// call starts the dispatcher goroutine; later calls only swap the sink
// — there is never a second dispatcher.
func (t *MessageTransport) SetDispatcher(sink DispatchFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sink = sink
	t.sinkEverSet = true
	if !t.dispatching {
		t.dispatching = true
		go t.dispatchLoop()
	}
	t.cond.Broadcast()
}

// SetProtocol subscribes a protocol to inbound fan-out. The same
// instance twice is a no-op; a third distinct protocol is rejected
// with ErrTooManyProtocols. On success the protocol's ConnectionMade
// is invoked before this returns.
func (t *MessageTransport) SetProtocol(p Protocol) error {
	t.mu.Lock()
	for _, existing := range t.protocols {
		if existing == p {
			t.mu.Unlock()
			return nil
		}
	}
	if len(t.protocols) >= 2 {
		t.mu.Unlock()
		return ErrTooManyProtocols
	}
	t.protocols = append(t.protocols, p)
	t.mu.Unlock()

	p.ConnectionMade(t)
	return nil
}

// Protocols returns the subscribed protocols in subscription order.
func (t *MessageTransport) Protocols() []Protocol {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Protocol, len(t.protocols))
	copy(out, t.protocols)
	return out
}

// Close begins a graceful shutdown: no new writes, but everything
// already queued still drains. Once the queue empties the dispatcher
// exits and delivers ConnectionLost to every protocol. Idempotent.
func (t *MessageTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateOpen {
		t.state = StateClosing
		t.cond.Broadcast()
	}
}

// Abort shuts down immediately: the queue is discarded, nothing else
// will be dispatched. A sink call already in flight is not cancelled —
// half a serial frame is worse than a whole one — but no further
// command follows it.
func (t *MessageTransport) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateClosed {
		t.state = StateClosed
		t.queue = nil
		t.cond.Broadcast()
	}
}

// IsClosing reports whether Close or Abort has been called.
func (t *MessageTransport) IsClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != StateOpen
}

// QueueLen returns the number of commands waiting for dispatch.
func (t *MessageTransport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len()
}

// ExtraInfo returns a diagnostics value set with SetExtraInfo, or nil.
func (t *MessageTransport) ExtraInfo(name string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.extra[name]
}

// SetExtraInfo records a diagnostics value (link description, port
// name). For logs and debugging, never for control flow.
func (t *MessageTransport) SetExtraInfo(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extra[name] = value
}

// PktReceiver is the inbound entry point, called by the packet layer
// for every structurally valid packet, in arrival order. It wraps the
// packet in a Message, runs callback correlation (expiry sweep, then
// the matching callback — both strictly before fan-out), and delivers
// the message to every subscribed protocol in subscription order.
//
// Inbound delivery ignores the transport's lifecycle state: whether
// traffic stops is the link's decision, and a closing transport can
// still be owed replies for commands it already sent.
func (t *MessageTransport) PktReceiver(pkt *ramses.Packet) {
	msg := ramses.NewMessage(pkt)

	if t.reg != nil {
		t.reg.OnMessageArrival(msg, time.Now())
	}

	for _, p := range t.Protocols() {
		p.DataReceived(msg)
	}
}

// dispatchLoop is the single background drain: wait for work, pop the
// highest-priority command, hand it to the sink and wait for the sink
// to return before popping the next. One command in flight, ever —
// the radio is half-duplex and the lower layer's latency is the only
// backpressure this pipeline needs.
//
// The loop exits when the state has left Open and the queue is empty
// (Closing drains first; Abort empties the queue itself), then fans
// ConnectionLost out to every protocol exactly once.
func (t *MessageTransport) dispatchLoop() {
	for {
		t.mu.Lock()
		for t.queue.Len() == 0 && t.state == StateOpen {
			t.cond.Wait()
		}
		if t.queue.Len() == 0 {
			t.state = StateClosed
			protos := make([]Protocol, len(t.protocols))
			copy(protos, t.protocols)
			t.mu.Unlock()

			t.log.Debug("dispatcher exiting", zap.Int("protocols", len(protos)))
			for _, p := range protos {
				p.ConnectionLost(nil)
			}
			return
		}

		item := heap.Pop(&t.queue).(queued)
		sink := t.sink
		t.mu.Unlock()

		if err := sink(context.Background(), item.cmd); err != nil {
			// the command is gone either way — dispatch is fire-and-forget,
			// recovery belongs to the callback/deadline machinery above
			t.log.Warn("dispatch failed", zap.Stringer("cmd", item.cmd), zap.Error(err))
		}
	}
}

// ---------------------------------------------------------------
// capabilities this transport does not have
// ---------------------------------------------------------------

// PauseReading is not supported: inbound flow is driven by the radio,
// which cannot be asked to wait.
func (t *MessageTransport) PauseReading() error { return ErrNotSupported }

// ResumeReading is not supported, see PauseReading.
func (t *MessageTransport) ResumeReading() error { return ErrNotSupported }

// SetWriteBufferLimits is not supported: the outbound queue is
// unbounded and drained strictly in priority order.
func (t *MessageTransport) SetWriteBufferLimits(high, low int) error { return ErrNotSupported }

// GetWriteBufferSize is not supported; it returns 0 with the error.
func (t *MessageTransport) GetWriteBufferSize() (int, error) { return 0, ErrNotSupported }

// WriteEOF is not supported: a radio link has no half-close.
func (t *MessageTransport) WriteEOF() error { return ErrNotSupported }

// CanWriteEOF reports false. It is a capability probe, not an error.
func (t *MessageTransport) CanWriteEOF() bool { return false }
