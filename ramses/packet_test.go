package ramses

import (
	"errors"
	"testing"
	"time"
)

var parseTime = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

func TestParsePacket(t *testing.T) {
	line := "045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000"
	pkt, err := ParsePacket(line, parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if pkt.RSSI != "045" {
		t.Errorf("RSSI = %q", pkt.RSSI)
	}
	if pkt.Verb != VerbRQ {
		t.Errorf("Verb = %q", pkt.Verb)
	}
	if pkt.Code != "0004" {
		t.Errorf("Code = %q", pkt.Code)
	}
	if pkt.Length != 2 || pkt.Payload != "0000" {
		t.Errorf("Length/Payload = %d/%q", pkt.Length, pkt.Payload)
	}
	if !pkt.Dtm.Equal(parseTime) {
		t.Errorf("Dtm = %v, want %v", pkt.Dtm, parseTime)
	}
	if pkt.Raw() != line {
		t.Errorf("Raw() = %q", pkt.Raw())
	}
}

// TestParsePacketPaddedVerb checks that the space-padded I verb
// survives a fields-split — the padding collapses, the verb must not.
func TestParsePacketPaddedVerb(t *testing.T) {
	line := "068  I --- 04:056778 --:------ 04:056778 30C9 003 0007D0"
	pkt, err := ParsePacket(line, parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.Verb != VerbI {
		t.Errorf("Verb = %q, want %q", pkt.Verb, VerbI)
	}
}

func TestParsePacketTrimsLineEndings(t *testing.T) {
	line := "045 RP --- 01:123456 18:013393 --:------ 0004 002 0000\r\n"
	if _, err := ParsePacket(line, parseTime); err != nil {
		t.Fatalf("ParsePacket should tolerate CRLF: %v", err)
	}
}

// TestParsePacketRejectsNoise walks the malformed shapes the radio
// produces routinely — all must come back as ErrMalformedPacket, none
// may panic.
func TestParsePacketRejectsNoise(t *testing.T) {
	lines := []string{
		"",
		"garbage",
		"045 RQ --- 18:013393 01:123456 --:------ 0004 002",              // payload missing
		"045 RQ --- 18:013393 01:123456 --:------ 0004 003 0000",         // length mismatch
		"045 RQ --- 18:013393 01:123456 --:------ 0004 002 00ZZ",         // non-hex payload
		"045 XX --- 18:013393 01:123456 --:------ 0004 002 0000",         // bad verb
		"045 RQ --- 18013393 01:123456 --:------ 0004 002 0000",          // bad address
		"045 RQ --- 18:013393 01:123456 --:------ 004 002 0000",          // short code
		"045 RQ --- 18:013393 01:123456 --:------ 0004 xx 0000",          // bad length
		"045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000 trailer", // extra field
	}

	for _, line := range lines {
		if _, err := ParsePacket(line, parseTime); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("ParsePacket(%q): expected ErrMalformedPacket, got %v", line, err)
		}
	}
}

func TestPacketSrcDstResolution(t *testing.T) {
	// plain addressed packet: slot 0 -> slot 1
	pkt, err := ParsePacket("045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000", parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.Src() != "18:013393" || pkt.Dst() != "01:123456" {
		t.Errorf("src/dst = %s/%s", pkt.Src(), pkt.Dst())
	}

	// broadcast: sender in slots 0 and 2, slot 1 nul
	pkt, err = ParsePacket("068  I --- 04:056778 --:------ 04:056778 30C9 003 0007D0", parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.Src() != "04:056778" || pkt.Dst() != "04:056778" {
		t.Errorf("broadcast src/dst = %s/%s", pkt.Src(), pkt.Dst())
	}
}

// TestHeaderCorrelation is the contract that makes callbacks work: the
// reply header predicted by a command equals the header computed from
// the reply packet that later arrives.
func TestHeaderCorrelation(t *testing.T) {
	cmd, err := NewCommand(VerbRQ, "3220", "01:123456", "0000")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}

	reply, err := ParsePacket("072 RP --- 01:123456 18:000730 --:------ 3220 005 00C0080000", parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if cmd.ReplyHeader() != reply.Header() {
		t.Errorf("reply header mismatch: command predicts %q, packet computes %q",
			cmd.ReplyHeader(), reply.Header())
	}
}

func TestPacketHeaderUsesDstForRequests(t *testing.T) {
	rq, err := ParsePacket("045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000", parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	// the key names the device being asked, not the asker
	if got := rq.Header(); got != "0004|RQ|01:123456|00" {
		t.Errorf("Header() = %q", got)
	}

	rp, err := ParsePacket("072 RP --- 01:123456 18:013393 --:------ 0004 022 00000000000000000000000000000000000000000000", parseTime)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	// the key names the device answering
	if got := rp.Header(); got != "0004|RP|01:123456|00" {
		t.Errorf("Header() = %q", got)
	}
}
