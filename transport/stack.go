package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/link"
	"github.com/risa-org/ramses2/packet"
	"github.com/risa-org/ramses2/registry"
)

// ProtocolFactory builds the upper-layer protocol for a client stack.
type ProtocolFactory func() SenderProtocol

// NewMessageStack builds the upper layer: a MessageProtocol wired to a
// fresh MessageTransport. The pair is live for inbound traffic but has
// no dispatcher yet — writes are dropped until NewPacketStack (or
// NewClient) attaches one. That drop is deliberate: nothing below
// exists that could drain a queue.
func NewMessageStack(reg *registry.Registry, handler MessageHandler, log *zap.Logger) (*MessageProtocol, *MessageTransport, error) {
	p := NewMessageProtocol(handler, log)
	t, err := NewMessageTransport(reg, p, log)
	if err != nil {
		return nil, nil, fmt.Errorf("message stack: %w", err)
	}
	return p, t, nil
}

// NewPacketStack builds the lower layer over a byte link and completes
// the pipeline: the packet protocol's inbound side feeds
// mt.PktReceiver, and mt's dispatcher drains into the packet
// protocol's SendData. After this returns, writes flow to the wire.
func NewPacketStack(mt *MessageTransport, l link.Link, log *zap.Logger, opts ...packet.Option) *packet.Protocol {
	pp := packet.New(l, mt.PktReceiver, log, opts...)
	mt.SetDispatcher(pp.SendData)
	mt.SetExtraInfo("link", fmt.Sprintf("%T", l))
	return pp
}

// NewClient attaches a second, factory-built protocol to an existing
// transport — the stacked-client layout, where one physical link is
// shared by the main message protocol and an extra sender. The new
// protocol takes over as the dispatcher sink.
func NewClient(mt *MessageTransport, factory ProtocolFactory) (SenderProtocol, error) {
	p := factory()
	if err := mt.SetProtocol(p); err != nil {
		return nil, fmt.Errorf("client stack: %w", err)
	}
	mt.SetDispatcher(p.SendData)
	return p, nil
}
