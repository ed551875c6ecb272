package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/risa-org/ramses2/config"
	"github.com/risa-org/ramses2/ramses"
)

func TestNewLoggerBuildsForEveryLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "garbage"} {
		log, err := NewLogger(config.LogConfig{
			Level:   level,
			Format:  "console",
			Outputs: []string{"stderr"},
		})
		if err != nil {
			t.Errorf("level %q: NewLogger failed: %v", level, err)
			continue
		}
		log.Sync()
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramses2.log")
	log, err := NewLogger(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.Info("boiler relay bound")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "boiler relay bound") {
		t.Errorf("log file does not contain the entry: %q", data)
	}
}

func TestTrafficLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packet.log")
	tl := NewTrafficLog(config.PacketLogConfig{File: path})
	if tl == nil {
		t.Fatal("NewTrafficLog returned nil for a configured file")
	}

	at := time.Date(2026, 2, 3, 18, 45, 12, 0, time.UTC)
	line := "045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000"
	pkt, err := ramses.ParsePacket(line, at)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	tl.Record(pkt)
	if err := tl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading packet log: %v", err)
	}
	got := strings.TrimRight(string(data), "\n")
	want := at.Format(time.RFC3339Nano) + " " + line
	if got != want {
		t.Errorf("packet log line = %q, want %q", got, want)
	}
}

func TestNilTrafficLogIsSafe(t *testing.T) {
	tl := NewTrafficLog(config.PacketLogConfig{})
	if tl != nil {
		t.Fatal("empty file should produce a nil traffic log")
	}

	pkt, _ := ramses.ParsePacket(
		"045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000", time.Now())
	tl.Record(pkt) // must not panic
	if err := tl.Close(); err != nil {
		t.Errorf("nil Close should be a no-op, got %v", err)
	}
}
