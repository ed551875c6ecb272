package ramses

import (
	"fmt"
	"time"
)

// Message is the envelope the message layer hands to protocols: exactly
// one packet plus the timestamp it arrived. Payload decoding lives
// above this library, so a Message adds identity and presentation, not
// interpretation.
type Message struct {
	Pkt *Packet
	Dtm time.Time
}

// NewMessage wraps a packet. The message timestamp is the packet's
// reception timestamp.
func NewMessage(pkt *Packet) *Message {
	return &Message{Pkt: pkt, Dtm: pkt.Dtm}
}

func (m *Message) Verb() Verb      { return m.Pkt.Verb }
func (m *Message) Code() string    { return m.Pkt.Code }
func (m *Message) Payload() string { return m.Pkt.Payload }
func (m *Message) Src() Address    { return m.Pkt.Src() }
func (m *Message) Dst() Address    { return m.Pkt.Dst() }

// Header proxies the packet's correlation key.
func (m *Message) Header() string { return m.Pkt.Header() }

// String renders the plain monitor line — timestamp, verb, endpoints,
// code, payload. Use Format to substitute friendly device names.
func (m *Message) String() string {
	return m.Format(nil)
}

// Format renders the monitor line, asking name for a friendly label
// per address. A nil func, or an empty answer, falls back to the
// address itself. Labels are padded so columns line up in a stream.
func (m *Message) Format(name func(Address) string) string {
	label := func(a Address) string {
		if name != nil {
			if n := name(a); n != "" {
				return n
			}
		}
		return string(a)
	}
	return fmt.Sprintf("%s %s %-10s -> %-10s %s %s",
		m.Dtm.Format("2006-01-02T15:04:05.000000"),
		m.Verb(), label(m.Src()), label(m.Dst()), m.Code(), m.Payload())
}
