// Package frame provides interned call-stack frame identities.
package frame

import "sync"

// Frame is one call-stack position, identified by its symbol (or raw
// address text when unresolved) and owning module. Frames are interned:
// equal (symbol, module) pairs share a single *Frame handle, so handles
// compare with ==.
type Frame struct {
	Symbol string `json:"symbol"`
	Module string `json:"module,omitempty"`
}

// ID returns the frame's identity string, used for deterministic ordering.
func (f *Frame) ID() string {
	if f.Module != "" {
		return f.Module + "`" + f.Symbol
	}
	return f.Symbol
}

// String returns the human-readable form shown in the display.
func (f *Frame) String() string {
	return f.ID()
}

type key struct {
	symbol string
	module string
}

// Registry interns frames for the life of the process. It is append-only
// and safe for concurrent use: the ingest goroutine and the aggregation
// owner may both intern while a run is live.
type Registry struct {
	mu     sync.Mutex
	frames map[key]*Frame
}

// NewRegistry creates an empty frame registry.
func NewRegistry() *Registry {
	return &Registry{
		frames: make(map[key]*Frame),
	}
}

// Intern returns the canonical Frame for a (symbol, module) pair,
// allocating it on first sight. Garbled or unresolved symbol text is
// accepted verbatim as the identity.
func (r *Registry) Intern(symbol, module string) *Frame {
	k := key{symbol: symbol, module: module}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.frames[k]; ok {
		return f
	}
	f := &Frame{Symbol: symbol, Module: module}
	r.frames[k] = f
	return f
}

// Len returns the number of distinct frames seen so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}
