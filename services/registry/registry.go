// Package registry is the process-wide name→callable directory for
// workflow tools. A tool is a function of shape state → state; it may
// run synchronously or report itself as asynchronous so the engine
// knows whether to await it directly or offload it to a worker.
//
// Reads (Get, Exists, ListTools, GetToolInfo) are expected to vastly
// outnumber writes (Register, Unregister, Clear), so the table is
// guarded by a sync.RWMutex rather than a plain Mutex.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// Func is the shape every tool implements: it receives the current
// payload data and returns the new payload (or an error). Tools that
// need to block on I/O should still implement this signature; the
// engine offloads synchronous tools to a worker pool so one slow tool
// cannot stall other runs (see the engine package).
type Func func(ctx context.Context, state map[string]any) (map[string]any, error)

// Kind distinguishes how a tool prefers to be dispatched.
type Kind string

const (
	// KindSync tools are run on the engine's worker pool so a blocking
	// call doesn't stall the caller's run loop.
	KindSync Kind = "sync"
	// KindAsync tools are awaited directly; they are expected to
	// cooperate with ctx cancellation on their own.
	KindAsync Kind = "async"
)

// ToolInfo is an introspection descriptor for a registered tool. Go
// tools carry no runtime parameter signature the way the Python
// original's inspect.signature() does, so Doc is supplied at
// registration time as the closest equivalent of a docstring.
type ToolInfo struct {
	Name string
	Kind Kind
	Doc  string
}

type entry struct {
	fn   Func
	kind Kind
	doc  string
}

// Registry is a name-keyed directory of tool callables.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// New returns an empty Registry. Production code should wire a single
// instance at startup (see Default); tests construct a fresh Registry
// per test to avoid cross-test leakage.
func New() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Option configures a Register call.
type Option func(*entry)

// WithDoc attaches documentation to a tool, returned later by
// GetToolInfo.
func WithDoc(doc string) Option {
	return func(e *entry) { e.doc = doc }
}

// WithAsync marks a tool as asynchronous: the engine awaits it
// directly rather than dispatching it to the worker pool.
func WithAsync() Option {
	return func(e *entry) { e.kind = KindAsync }
}

// Register inserts name → fn. It fails if name is already registered
// unless override is true, or if fn is nil.
func (r *Registry) Register(name string, fn Func, override bool, opts ...Option) error {
	if fn == nil {
		return fmt.Errorf("registry: tool %q: func must not be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists && !override {
		return fmt.Errorf("registry: tool %q already registered (use override to replace it)", name)
	}

	e := entry{fn: fn, kind: KindSync}
	for _, opt := range opts {
		opt(&e)
	}
	r.tools[name] = e
	return nil
}

// MustRegister is Register with override=false, panicking on failure.
// Intended for init()-time registration blocks where a collision is a
// programming error, not a runtime condition.
func (r *Registry) MustRegister(name string, fn Func, opts ...Option) {
	if err := r.Register(name, fn, false, opts...); err != nil {
		panic(err)
	}
}

// Get returns the callable registered under name.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("registry: tool %q not found", name)
	}
	return e.fn, nil
}

// Kind reports how the named tool prefers to be dispatched.
func (r *Registry) Kind(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("registry: tool %q not found", name)
	}
	return e.kind, nil
}

// Exists is a pure existence query.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tools[name]
	return ok
}

// ListTools returns a snapshot of registered names. Order is
// unspecified.
func (r *Registry) ListTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Unregister removes name. It fails if name isn't registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("registry: tool %q not found", name)
	}
	delete(r.tools, name)
	return nil
}

// Clear removes every registered tool. Intended for test teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]entry)
}

// GetToolInfo returns an introspection descriptor for name.
func (r *Registry) GetToolInfo(name string) (ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return ToolInfo{}, fmt.Errorf("registry: tool %q not found", name)
	}
	return ToolInfo{Name: name, Kind: e.kind, Doc: e.doc}, nil
}

var defaultRegistry = New()

// Default returns the process-wide registry. Production wires tools
// into it at startup (see the toolkit and codereview packages' Register
// functions); tests should construct their own Registry with New
// instead of touching the shared default.
func Default() *Registry {
	return defaultRegistry
}
