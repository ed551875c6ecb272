package ramses

import (
	"errors"
	"testing"
)

// TestParseVerbNormalizesPadding checks that both the padded wire form
// and the bare fields-split form land on the same Verb.
func TestParseVerbNormalizesPadding(t *testing.T) {
	cases := map[string]Verb{
		"I":  VerbI,
		" I": VerbI,
		"RQ": VerbRQ,
		"RP": VerbRP,
		"W":  VerbW,
		" W": VerbW,
	}

	for token, want := range cases {
		got, err := ParseVerb(token)
		if err != nil {
			t.Fatalf("ParseVerb(%q) failed: %v", token, err)
		}
		if got != want {
			t.Errorf("ParseVerb(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestParseVerbRejectsJunk(t *testing.T) {
	for _, token := range []string{"", "X", "RQW", "rq"} {
		if _, err := ParseVerb(token); !errors.Is(err, ErrInvalidVerb) {
			t.Errorf("ParseVerb(%q): expected ErrInvalidVerb, got %v", token, err)
		}
	}
}

// TestPriorityOrdering pins the numeric ordering — lower dispatches
// earlier, and the constants must never be reordered.
func TestPriorityOrdering(t *testing.T) {
	ordered := []Priority{
		PriorityHighest,
		PriorityHigh,
		PriorityDefault,
		PriorityLow,
		PriorityLowest,
	}

	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("priority %d (%d) should be strictly below %d (%d)",
				i-1, ordered[i-1], i, ordered[i])
		}
	}
}

func TestClassName(t *testing.T) {
	if got := ClassName("01"); got != "CTL" {
		t.Errorf("ClassName(01) = %q, want CTL", got)
	}
	if got := ClassName("18"); got != "HGI" {
		t.Errorf("ClassName(18) = %q, want HGI", got)
	}
	if got := ClassName("99"); got != "???" {
		t.Errorf("ClassName(99) = %q, want ???", got)
	}
}

func TestNewDeviceDerivesClass(t *testing.T) {
	dev := NewDevice("04:056778", "kitchen rad")
	if dev.Class != "TRV" {
		t.Errorf("expected class TRV, got %q", dev.Class)
	}
	if dev.Name != "kitchen rad" {
		t.Errorf("expected name preserved, got %q", dev.Name)
	}
}

func TestParseAddress(t *testing.T) {
	good := []string{"01:123456", "18:000730", "--:------"}
	for _, s := range good {
		if _, err := ParseAddress(s); err != nil {
			t.Errorf("ParseAddress(%q) failed: %v", s, err)
		}
	}

	bad := []string{"", "01-123456", "1:123456", "01:12345", "ab:123456", "01:12345x"}
	for _, s := range bad {
		if _, err := ParseAddress(s); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ParseAddress(%q): expected ErrInvalidAddress, got %v", s, err)
		}
	}
}

func TestAddressClass(t *testing.T) {
	addr := Address("13:163733")
	if addr.Class() != "13" {
		t.Errorf("expected class 13, got %q", addr.Class())
	}
	if NulAddress.Class() != "" {
		t.Errorf("nul address should have empty class, got %q", NulAddress.Class())
	}
	if !NulAddress.IsNul() {
		t.Error("NulAddress.IsNul() should be true")
	}
}
