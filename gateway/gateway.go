// Package gateway ties the stack together: configuration, logger,
// callback registry, device-name store, traffic log, and the wired
// transport layers. One Gateway per radio dongle.
//
// There is deliberately no package-level state here — everything hangs
// off the Gateway value and is passed down by injection, so two
// gateways in one process (say, two dongles on two sites) never touch
// each other.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/config"
	"github.com/risa-org/ramses2/link"
	"github.com/risa-org/ramses2/link/serialport"
	"github.com/risa-org/ramses2/link/tcp"
	"github.com/risa-org/ramses2/link/ws"
	"github.com/risa-org/ramses2/observability"
	"github.com/risa-org/ramses2/packet"
	"github.com/risa-org/ramses2/ramses"
	"github.com/risa-org/ramses2/registry"
	"github.com/risa-org/ramses2/store"
	filestore "github.com/risa-org/ramses2/store/file"
	memstore "github.com/risa-org/ramses2/store/memory"
	"github.com/risa-org/ramses2/transport"
)

// ErrNotStarted is returned by operations that need a wired stack
// before Open or Start has built one.
var ErrNotStarted = errors.New("gateway not started")

// Gateway owns one dongle's worth of stack.
type Gateway struct {
	cfg     *config.Config
	log     *zap.Logger
	reg     *registry.Registry
	devices store.Store
	traffic *observability.TrafficLog

	mu       sync.Mutex
	msgProto *transport.MessageProtocol
	msgTrans *transport.MessageTransport
	pktProto *packet.Protocol

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New builds a gateway from configuration: registry, device store
// (file-backed when known_devices is set, volatile otherwise) and the
// packet traffic log (when configured). Nothing is connected yet.
func New(cfg *config.Config, log *zap.Logger) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}

	var devices store.Store
	if cfg.KnownDevices != "" {
		fs, err := filestore.New(cfg.KnownDevices)
		if err != nil {
			return nil, fmt.Errorf("known devices: %w", err)
		}
		devices = fs
	} else {
		devices = memstore.New()
	}

	return &Gateway{
		cfg:        cfg,
		log:        log,
		reg:        registry.New(log),
		devices:    devices,
		traffic:    observability.NewTrafficLog(cfg.PacketLog),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Registry exposes the callback registry — for callers that want to
// register daemon observers directly rather than through SendCmd.
func (g *Gateway) Registry() *registry.Registry { return g.reg }

// Devices exposes the known-device store.
func (g *Gateway) Devices() store.Store { return g.devices }

// DeviceName returns the friendly name for an address, or "" when the
// device is unknown. Matches ramses.Message.Format's name func.
func (g *Gateway) DeviceName(a ramses.Address) string {
	if d, ok := g.devices.Get(a); ok {
		return d.Name
	}
	return ""
}

// Open builds the message stack: protocol plus transport, subscribed
// and live for inbound delivery, but with no link underneath. Writes
// are dropped until Start (or StartWithLink) wires a packet stack —
// the offline Parse mode runs against exactly this shape.
func (g *Gateway) Open(handler transport.MessageHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.msgTrans != nil {
		return errors.New("gateway already open")
	}

	mp, mt, err := transport.NewMessageStack(g.reg, handler, g.log)
	if err != nil {
		return err
	}
	g.msgProto, g.msgTrans = mp, mt
	return nil
}

// Start opens the message stack, opens the configured port and wires
// the packet stack over it. After Start returns, commands flow to the
// radio and inbound packets reach the handler.
func (g *Gateway) Start(ctx context.Context, handler transport.MessageHandler) error {
	l, err := g.openLink(ctx)
	if err != nil {
		return err
	}
	if err := g.StartWithLink(handler, l); err != nil {
		l.Close()
		return err
	}
	return nil
}

// StartWithLink is Start with the byte link supplied by the caller —
// tests and embedders bring their own (a mem pair, usually).
func (g *Gateway) StartWithLink(handler transport.MessageHandler, l link.Link) error {
	if err := g.Open(handler); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var opts []packet.Option
	if g.traffic != nil {
		opts = append(opts, packet.WithTap(g.traffic.Record))
	}
	g.pktProto = transport.NewPacketStack(g.msgTrans, l, g.log, opts...)
	g.msgTrans.SetExtraInfo("port", g.cfg.Port)

	g.log.Info("gateway started", zap.String("port", g.cfg.Port))
	return nil
}

// openLink picks the link type from the port's shape: a URL scheme for
// the bridges, anything else is a local serial device.
func (g *Gateway) openLink(ctx context.Context) (link.Link, error) {
	port := g.cfg.Port
	switch {
	case port == "":
		return nil, errors.New("no port configured")
	case strings.HasPrefix(port, "tcp://"):
		return tcp.Dial(strings.TrimPrefix(port, "tcp://"))
	case strings.HasPrefix(port, "ws://"), strings.HasPrefix(port, "wss://"):
		return ws.Dial(ctx, port)
	default:
		return serialport.Open(port, serialport.Settings{
			Baud:        g.cfg.Serial.Baud,
			DataBits:    g.cfg.Serial.DataBits,
			Parity:      g.cfg.Serial.Parity,
			StopBits:    g.cfg.Serial.StopBits,
			ReadTimeout: g.cfg.Serial.ReadTimeout,
		})
	}
}

// Run blocks until one of the three expected terminal conditions, each
// logged distinctly so an operator can tell them apart at a glance:
//
//   - Shutdown() was called — graceful exit, returns nil;
//   - ctx was cancelled (SIGINT, typically) — returns ctx.Err();
//   - the link ended cleanly — end of input, returns io.EOF.
//
// A link that ends with a read error is none of those: the fault
// propagates to the caller and is fatal to whatever owns the gateway.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	pkt := g.pktProto
	g.mu.Unlock()

	var done <-chan link.DisconnectEvent // nil without a link: blocks forever
	if pkt != nil {
		done = pkt.Done()
	}

	select {
	case <-g.shutdownCh:
		g.log.Info("shutdown requested, draining and exiting")
		return nil
	case <-ctx.Done():
		g.log.Info("interrupted, exiting")
		return ctx.Err()
	case ev := <-done:
		if ev.Reason == link.ReasonClosedClean {
			g.log.Info("end of input, link closed cleanly")
			return io.EOF
		}
		g.log.Error("link failed", zap.Error(ev.Err))
		return fmt.Errorf("link failed: %w", ev.Err)
	}
}

// Shutdown requests a graceful exit: Run returns nil, queued commands
// keep draining until Close. Safe to call from any goroutine, any
// number of times.
func (g *Gateway) Shutdown() {
	g.shutdownOnce.Do(func() { close(g.shutdownCh) })
}

// Close tears the stack down: the transport drains and notifies its
// protocols, the link closes, the traffic log flushes.
func (g *Gateway) Close() error {
	g.mu.Lock()
	mt, pkt := g.msgTrans, g.pktProto
	g.mu.Unlock()

	if mt != nil {
		mt.Close()
	}
	var err error
	if pkt != nil {
		err = pkt.Close()
	}
	if cerr := g.traffic.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// SendOption tweaks one SendCmd call.
type SendOption func(*sendSettings)

type sendSettings struct {
	reply   registry.Handler
	timeout time.Duration
	daemon  bool
}

// WithReply registers handler under the command's reply header before
// sending. A non-zero timeout sets the registry deadline: if no reply
// arrives in time, handler fires once with expired=true on the next
// message arrival after the deadline.
func WithReply(handler registry.Handler, timeout time.Duration) SendOption {
	return func(s *sendSettings) {
		s.reply = handler
		s.timeout = timeout
	}
}

// WithDaemonReply registers handler as a daemon: it fires on every
// matching arrival, indefinitely, and never expires.
func WithDaemonReply(handler registry.Handler) SendOption {
	return func(s *sendSettings) {
		s.reply = handler
		s.daemon = true
	}
}

// SendCmd enqueues one command, optionally registering its reply
// callback first — registration strictly before the send, so a fast
// reply cannot slip past an unregistered header.
func (g *Gateway) SendCmd(ctx context.Context, cmd *ramses.Command, opts ...SendOption) error {
	g.mu.Lock()
	mp := g.msgProto
	g.mu.Unlock()
	if mp == nil {
		return ErrNotStarted
	}

	var s sendSettings
	for _, opt := range opts {
		opt(&s)
	}

	if s.reply != nil {
		e := registry.Entry{Handler: s.reply, Daemon: s.daemon}
		if s.timeout > 0 {
			e.Deadline = time.Now().Add(s.timeout)
		}
		g.reg.Register(cmd.ReplyHeader(), e)
	}

	return mp.SendData(ctx, cmd)
}

// Parse is the offline mode: it reads packet-log lines from r and
// feeds them through the same inbound pipeline a live link would —
// callbacks fire, protocols fan out, the handler sees every message.
// Lines may carry the traffic log's leading timestamp or be bare
// frames. Unparseable lines are dropped with a debug log, exactly as
// the packet layer drops radio noise.
//
// Returns io.EOF when the input is exhausted — end of input is one of
// the three expected terminal conditions, and callers treat it as
// such, not as a fault.
func (g *Gateway) Parse(ctx context.Context, r io.Reader) error {
	g.mu.Lock()
	mt := g.msgTrans
	g.mu.Unlock()
	if mt == nil {
		return ErrNotStarted
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		at, frame := splitTimestamp(line)
		pkt, err := ramses.ParsePacket(frame, at)
		if err != nil {
			g.log.Debug("dropped line", zap.String("line", line), zap.Error(err))
			continue
		}
		mt.PktReceiver(pkt)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	g.log.Info("end of input")
	return io.EOF
}

// timestampLayouts are the stamps a packet log may carry: the traffic
// log's RFC3339Nano, and the plain space-free form older captures use.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000",
}

// splitTimestamp peels a leading timestamp off a log line. Bare frames
// come back untouched, stamped with the current time.
func splitTimestamp(line string) (time.Time, string) {
	first, rest, found := strings.Cut(line, " ")
	if found {
		for _, layout := range timestampLayouts {
			if at, err := time.Parse(layout, first); err == nil {
				return at, rest
			}
		}
	}
	return time.Now(), line
}
