package observability

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/risa-org/ramses2/config"
	"github.com/risa-org/ramses2/ramses"
)

// TrafficLog is the append-only raw packet log: one line per received
// packet, timestamp first, the frame exactly as it came off the radio.
// These files are what the parse command replays, so the format is
// part of the contract, not cosmetics.
//
// Rotation is lumberjack's — the radio produces a steady trickle that
// adds up to real disk over months of monitoring.
type TrafficLog struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// NewTrafficLog opens (or creates) the packet log described by cfg.
// Returns nil when cfg.File is empty — a nil *TrafficLog is safe to
// use, Record just does nothing.
func NewTrafficLog(cfg config.PacketLogConfig) *TrafficLog {
	if cfg.File == "" {
		return nil
	}
	return &TrafficLog{
		out: &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    atLeast(cfg.MaxSizeMB, 10),
			MaxBackups: atLeast(cfg.MaxBackups, 1),
			MaxAge:     atLeast(cfg.MaxAgeDays, 7),
			Compress:   cfg.Compress,
		},
	}
}

// Record appends one packet. Matches the packet layer's tap signature,
// so a TrafficLog plugs straight into packet.WithTap(tl.Record).
func (t *TrafficLog) Record(pkt *ramses.Packet) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s %s\n", pkt.Dtm.Format(time.RFC3339Nano), pkt.Raw())
}

// Close flushes and closes the underlying file. Nil-safe.
func (t *TrafficLog) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Close()
}
