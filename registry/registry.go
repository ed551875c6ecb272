// Package registry correlates outbound requests with inbound replies.
//
// A caller that sends a command registers a handler under the header
// the reply will carry (Command.ReplyHeader). When the message layer
// sees an inbound message it asks the registry, which fires the
// matching handler. One registry instance is shared by everything
// wired to the same gateway.
package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/ramses2/ramses"
)

// Handler receives the correlated message. expired is true when the
// entry's deadline passed before a match arrived — msg is nil in that
// case, and the entry is already gone.
type Handler func(msg *ramses.Message, expired bool)

// Entry is one registered callback. Non-daemon entries fire once and
// are removed; daemon entries persist across deliveries and never
// expire. Deadline zero means no deadline.
type Entry struct {
	Handler  Handler
	Daemon   bool
	Deadline time.Time
}

// Registry is a thread-safe header → Entry map. At most one entry per
// header — registering again under the same header replaces the
// previous entry (last write wins).
//
// Expiry is lazy: deadlines are only checked when a message arrives.
// With no inbound traffic an expired entry just sits there. The radio
// chatters constantly in any live installation, so a timer goroutine
// buys nothing — but it does mean a dead-silent link never fires
// expiry handlers. Known, accepted.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	log     *zap.Logger
}

// New creates an empty registry. A nil logger is fine.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]Entry),
		log:     log,
	}
}

// Register stores an entry under the given header, replacing any
// previous one. A nil handler is stored too — it matches and consumes
// a message without doing anything, which is occasionally useful to
// swallow an expected reply.
func (r *Registry) Register(header string, e Entry) {
	r.mu.Lock()
	r.entries[header] = e
	r.mu.Unlock()

	r.log.Debug("callback registered",
		zap.String("header", header),
		zap.Bool("daemon", e.Daemon),
		zap.Time("deadline", e.Deadline))
}

// Deregister removes the entry for header, if any.
func (r *Registry) Deregister(header string) {
	r.mu.Lock()
	delete(r.entries, header)
	r.mu.Unlock()
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// OnMessageArrival is called by the message transport for every
// inbound message, before the message fans out to protocols. Two
// phases, strictly in this order:
//
//  1. expiry sweep — every non-daemon entry whose deadline is set and
//     has passed is removed and its handler invoked with (nil, true);
//  2. delivery — the entry matching msg.Header(), if any, is invoked
//     with (msg, false) and removed unless it is a daemon.
//
// Handlers run outside the lock, so a handler may register the next
// callback of a sequence without deadlocking.
func (r *Registry) OnMessageArrival(msg *ramses.Message, now time.Time) {
	header := msg.Header()

	r.mu.Lock()

	var expired []string
	for h, e := range r.entries {
		if e.Daemon || e.Deadline.IsZero() || e.Deadline.After(now) {
			continue
		}
		expired = append(expired, h)
	}
	// map order is random — sort so expiry runs deterministically
	sort.Strings(expired)

	expiredEntries := make([]Entry, len(expired))
	for i, h := range expired {
		expiredEntries[i] = r.entries[h]
		delete(r.entries, h)
	}

	match, found := r.entries[header]
	if found && !match.Daemon {
		delete(r.entries, header)
	}

	r.mu.Unlock()

	for i, e := range expiredEntries {
		r.log.Debug("callback expired", zap.String("header", expired[i]))
		if e.Handler != nil {
			e.Handler(nil, true)
		}
	}

	if found {
		r.log.Debug("callback fired",
			zap.String("header", header),
			zap.Bool("daemon", match.Daemon))
		if match.Handler != nil {
			match.Handler(msg, false)
		}
	}
}
