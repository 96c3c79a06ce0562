package security

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Request is what a handler receives for one dispatched clause.
type Request struct {
	Mode Mode
	// Phrase is the registered phrase that matched, e.g. "block ip".
	Phrase string
	// Args holds the clause's words after the matched phrase, bare words as
	// strings and argument expressions already evaluated.
	Args   []any
	Line   int
	Column int
}

// Handler performs one action. A returned error marks the clause failed;
// it only becomes a script exception when it implements Escalator.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

type HandlerFunc func(ctx context.Context, req Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) { return f(ctx, req) }

// Escalator is implemented by handler errors that must propagate as script
// exceptions instead of failed outcomes.
type Escalator interface {
	Escalate() bool
}

type entryKey struct {
	mode   Mode
	phrase string
}

// Entry describes one registration.
type Entry struct {
	Mode    Mode
	Phrase  string
	Handler Handler
}

// Registry maps (mode, phrase) to handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[entryKey]Handler
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[entryKey]Handler)}
}

// NormalizePhrase lowercases and collapses whitespace.
func NormalizePhrase(phrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), " "))
}

// Register adds or replaces the handler for (mode, phrase).
func (r *Registry) Register(mode Mode, phrase string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entryKey{mode, NormalizePhrase(phrase)}] = h
}

func (r *Registry) RegisterFunc(mode Mode, phrase string, fn HandlerFunc) {
	r.Register(mode, phrase, fn)
}

// Lookup finds the handler for the longest prefix of words registered for
// mode, falling back to Any at each length. n is the number of words the
// match consumed.
func (r *Registry) Lookup(mode Mode, words []string) (h Handler, phrase string, n int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n = len(words); n > 0; n-- {
		phrase = NormalizePhrase(strings.Join(words[:n], " "))
		if h, ok = r.entries[entryKey{mode, phrase}]; ok {
			return h, phrase, n, true
		}
		if h, ok = r.entries[entryKey{Any, phrase}]; ok {
			return h, phrase, n, true
		}
	}
	return nil, "", 0, false
}

// Entries lists registrations sorted by phrase, then mode.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for k, h := range r.entries {
		out = append(out, Entry{Mode: k.mode, Phrase: k.phrase, Handler: h})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Phrase != out[j].Phrase {
			return out[i].Phrase < out[j].Phrase
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}
