package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/ramses"
)

// ErrNoTransport is returned by SendData before ConnectionMade has
// attached a transport — a protocol used before it is wired.
var ErrNoTransport = errors.New("protocol has no transport")

// MessageHandler receives every inbound message delivered to a
// MessageProtocol. It runs on the inbound delivery goroutine, so a
// slow handler stalls fan-out — hand off if you do real work.
type MessageHandler func(msg *ramses.Message)

// MessageProtocol is the default upper-layer protocol: it forwards
// inbound messages to a user handler and pushes outbound commands into
// its transport's queue, honoring write pauses.
type MessageProtocol struct {
	mu        sync.Mutex
	transport *MessageTransport
	gate      chan struct{} // non-nil while writing is paused; closed on resume

	handler MessageHandler
	log     *zap.Logger

	done     chan error
	lostOnce sync.Once
}

// NewMessageProtocol builds a protocol around a handler. A nil handler
// drops inbound messages (legal for send-only users); a nil logger is
// fine.
func NewMessageProtocol(handler MessageHandler, log *zap.Logger) *MessageProtocol {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageProtocol{
		handler: handler,
		log:     log,
		done:    make(chan error, 1),
	}
}

// ConnectionMade records the transport. Called by the transport when
// this protocol subscribes.
func (p *MessageProtocol) ConnectionMade(t *MessageTransport) {
	p.mu.Lock()
	p.transport = t
	p.mu.Unlock()
}

// DataReceived forwards the message to the handler.
func (p *MessageProtocol) DataReceived(msg *ramses.Message) {
	if p.handler != nil {
		p.handler(msg)
	}
}

// ConnectionLost records the cause and signals Done, exactly once.
// The owner decides what teardown means — nothing here stops a process
// or an event loop.
func (p *MessageProtocol) ConnectionLost(err error) {
	p.lostOnce.Do(func() {
		p.log.Info("connection lost", zap.Error(err))
		p.done <- err
		close(p.done)
	})
}

// Done emits the ConnectionLost cause (nil on clean teardown), then is
// closed. Wait on it to know the transport has fully shut down.
func (p *MessageProtocol) Done() <-chan error {
	return p.done
}

// SendData pushes one command into the transport's queue. While
// writing is paused it blocks — commands are delayed, never dropped —
// waking the moment ResumeWriting runs. The wait also watches ctx, so
// a caller can give up on a pause that never lifts.
func (p *MessageProtocol) SendData(ctx context.Context, cmd *ramses.Command) error {
	for {
		p.mu.Lock()
		t := p.transport
		gate := p.gate
		p.mu.Unlock()

		if t == nil {
			return ErrNoTransport
		}
		if gate == nil {
			return t.Write(cmd)
		}

		select {
		case <-gate:
			// resumed — re-read state, a new pause may already be up
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PauseWriting gates SendData. Idempotent.
func (p *MessageProtocol) PauseWriting() {
	p.mu.Lock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
	p.mu.Unlock()
}

// ResumeWriting lifts the gate, waking every blocked SendData.
// Idempotent.
func (p *MessageProtocol) ResumeWriting() {
	p.mu.Lock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
	p.mu.Unlock()
}
