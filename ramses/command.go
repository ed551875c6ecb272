package ramses

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCommand is returned by NewCommand when a field fails
// validation. The wrapped message says which field and why.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one outbound instruction for the radio gateway: a verb, a
// message code, a destination and a hex payload. Commands are immutable
// once built — NewCommand is the only constructor and validates every
// field, so a *Command in flight is always well-formed.
//
// The dispatch sequence number is NOT part of a Command: ordering among
// equal priorities is assigned by the transport at enqueue time, not by
// whoever happened to construct the command first.
type Command struct {
	verb     Verb
	code     string  // 4 hex chars, upper case
	from     Address // source stamped on the frame, defaults to the gateway
	dest     Address
	payload  string // hex string, even length, upper case
	priority Priority
}

// CommandOption tweaks an optional field at construction.
type CommandOption func(*Command)

// WithPriority sets the dispatch priority. Default is PriorityDefault.
func WithPriority(p Priority) CommandOption {
	return func(c *Command) { c.priority = p }
}

// WithSource overrides the source address stamped on the frame.
// Only useful when impersonating a device for testing — real traffic
// always originates from the gateway address.
func WithSource(from Address) CommandOption {
	return func(c *Command) { c.from = from }
}

// NewCommand validates and builds a Command. Code must be 4 hex chars,
// payload an even-length hex string (empty is allowed — a few codes are
// header-only). Both are normalized to upper case.
func NewCommand(verb Verb, code string, dest Address, payload string, opts ...CommandOption) (*Command, error) {
	if _, err := ParseVerb(string(verb)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	code = strings.ToUpper(code)
	if len(code) != 4 || !isHex(code) {
		return nil, fmt.Errorf("%w: code %q", ErrInvalidCommand, code)
	}
	if _, err := ParseAddress(string(dest)); err != nil || dest.IsNul() {
		return nil, fmt.Errorf("%w: destination %q", ErrInvalidCommand, dest)
	}
	payload = strings.ToUpper(payload)
	if len(payload)%2 != 0 || !isHex(payload) {
		return nil, fmt.Errorf("%w: payload %q", ErrInvalidCommand, payload)
	}

	c := &Command{
		verb:     verb,
		code:     code,
		from:     GatewayAddress,
		dest:     dest,
		payload:  payload,
		priority: PriorityDefault,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Command) Verb() Verb         { return c.verb }
func (c *Command) Code() string       { return c.code }
func (c *Command) Dest() Address      { return c.dest }
func (c *Command) Payload() string    { return c.payload }
func (c *Command) Priority() Priority { return c.priority }

// Frame renders the line the gateway expects on its serial input:
//
//	VV --- SRC DST --:------ CODE LLL PAYLOAD
//
// LLL is the payload length in bytes, zero-padded to three digits.
// No trailing newline — the link layer owns line termination.
func (c *Command) Frame() string {
	return fmt.Sprintf("%s --- %s %s %s %s %03d %s",
		c.verb, c.from, c.dest, NulAddress, c.code, len(c.payload)/2, c.payload)
}

// Header is the correlation key of this command itself:
// code|verb|dest and, when the payload carries one, the context byte.
func (c *Command) Header() string {
	return header(c.code, c.verb, c.dest, payloadCtx(c.payload))
}

// ReplyHeader is the correlation key the expected answer will carry:
// same code, destination and context, with the verb flipped (RQ→RP,
// W→I). Register a callback under this key before sending and the
// transport will hand you the reply.
func (c *Command) ReplyHeader() string {
	return header(c.code, replyVerb(c.verb), c.dest, payloadCtx(c.payload))
}

// String is the log-friendly short form — verb, code, destination,
// payload. Use Frame() for the wire line.
func (c *Command) String() string {
	return fmt.Sprintf("%s %s %s %s", c.verb, c.code, c.dest, c.payload)
}

// header joins the correlation key parts. The context part is omitted
// entirely when empty, so "3220|RQ|01:123456|00" and "1F09|RQ|01:123456"
// are both valid shapes.
func header(code string, verb Verb, addr Address, ctx string) string {
	parts := []string{code, string(verb), string(addr)}
	if ctx != "" {
		parts = append(parts, ctx)
	}
	return strings.Join(parts, "|")
}

// payloadCtx extracts the context byte pair — RAMSES replies echo the
// first payload byte (a zone index or domain id), which is what makes
// request/reply correlation unambiguous when several zones are queried
// with the same code.
func payloadCtx(payload string) string {
	if len(payload) >= 2 {
		return payload[:2]
	}
	return ""
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
