package ramses

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPacket is returned by ParsePacket for any line that does
// not have the gateway's packet shape. The packet layer drops such
// lines — radio noise and truncated frames are routine, not faults.
var ErrMalformedPacket = errors.New("malformed packet line")

// Packet is one structurally valid line received from the gateway:
//
//	RSSI VV SEQ ADDR0 ADDR1 ADDR2 CODE LLL PAYLOAD
//
// e.g.
//
//	045 RQ --- 18:013393 01:123456 --:------ 0004 002 0000
//
// Structurally valid means the columns parse and the declared length
// matches the payload — nothing here interprets what the payload means.
type Packet struct {
	Dtm     time.Time  // reception timestamp, stamped by the packet layer
	RSSI    string     // signal strength as reported, "045", opaque
	Verb    Verb       // normalized, space-padded form
	Seqn    string     // sequence column, usually "---"
	Addrs   [3]Address // the three address slots as they appear
	Code    string     // 4 hex chars
	Length  int        // declared payload length in bytes
	Payload string     // hex string, 2*Length chars

	raw string // the line as received, for logs and replay files
}

// ParsePacket validates one gateway line. at becomes the packet's
// reception timestamp. Returns ErrMalformedPacket (wrapped, with the
// reason) for anything that does not fit the shape above.
func ParsePacket(line string, at time.Time) (*Packet, error) {
	line = strings.TrimRight(line, "\r\n ")

	// The verb column is space-padded (" I"), so a plain fields-split
	// is the robust way in: it collapses the padding instead of making
	// us count columns around it.
	fields := strings.Fields(line)
	if len(fields) != 8 && len(fields) != 9 {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformedPacket, len(fields))
	}

	verb, err := ParseVerb(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	var addrs [3]Address
	for i := 0; i < 3; i++ {
		addr, err := ParseAddress(fields[3+i])
		if err != nil {
			return nil, fmt.Errorf("%w: address slot %d: %v", ErrMalformedPacket, i, err)
		}
		addrs[i] = addr
	}

	code := fields[6]
	if len(code) != 4 || !isHex(code) {
		return nil, fmt.Errorf("%w: code %q", ErrMalformedPacket, code)
	}

	length, err := strconv.Atoi(fields[7])
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: length %q", ErrMalformedPacket, fields[7])
	}

	payload := ""
	if len(fields) == 9 {
		payload = strings.ToUpper(fields[8])
	}
	if !isHex(payload) || len(payload) != 2*length {
		return nil, fmt.Errorf("%w: payload %q does not match declared length %d",
			ErrMalformedPacket, payload, length)
	}

	return &Packet{
		Dtm:     at,
		RSSI:    fields[0],
		Verb:    verb,
		Seqn:    fields[2],
		Addrs:   addrs,
		Code:    code,
		Length:  length,
		Payload: payload,
		raw:     line,
	}, nil
}

// Src resolves the effective source from the three-slot addressing.
// Slot 0 is the sender when populated; broadcasts from a device to
// itself put the device in slot 2 only.
func (p *Packet) Src() Address {
	if !p.Addrs[0].IsNul() {
		return p.Addrs[0]
	}
	return p.Addrs[2]
}

// Dst resolves the effective destination. Slot 1 when populated,
// otherwise slot 2 (which for a broadcast is the sender itself).
func (p *Packet) Dst() Address {
	if !p.Addrs[1].IsNul() {
		return p.Addrs[1]
	}
	return p.Addrs[2]
}

// Header is the correlation key: code|verb|addr and the context byte
// when the payload carries one. The address is the destination for
// RQ/W (the device being asked) and the source otherwise (the device
// answering or announcing) — so a command's ReplyHeader and the reply
// packet's Header land on the same string.
func (p *Packet) Header() string {
	addr := p.Src()
	if p.Verb == VerbRQ || p.Verb == VerbW {
		addr = p.Dst()
	}
	return header(p.Code, p.Verb, addr, payloadCtx(p.Payload))
}

// Raw returns the line exactly as received.
func (p *Packet) Raw() string { return p.raw }

func (p *Packet) String() string { return p.raw }
