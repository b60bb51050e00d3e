// Package keyboard is the Keyboard Router (spec §4.J): an ordered overlay
// stack; the topmost handler that reports itself active receives each
// key event, and the core itself only ever sees events a handler chose
// not to consume (or, if no handler is registered, every event).
//
// The overlay stack itself (command palette, template overlay,
// confirmation modals) is explicitly out of scope (spec §1); this
// package only owns the generic dispatch rule those overlays plug into,
// built directly from §4.J's description since no teacher package
// models "first active handler on a stack wins" — dcosson-h2's overlay
// package owns actual key *parsing* and rendering, both non-goals here.
package keyboard

import "sync"

// Key is a single keyboard event, routed (not raw-byte) per spec §4.J.
type Key struct {
	Key      string // logical key name, e.g. "a", "Enter", "Tab"
	Ctrl     bool
	Alt      bool
	Shift    bool
	Meta     bool
	Sequence string // raw escape sequence, if any, for handlers that need it
}

// Handler is one entry on the overlay stack. IsActive reports whether
// this handler currently wants to intercept events (an inactive overlay
// stays on the stack but is skipped); Handle returns true if it consumed
// the event.
type Handler interface {
	IsActive() bool
	Handle(k Key) bool
}

// Router maintains the ordered overlay stack and dispatches each key to
// the topmost active handler.
type Router struct {
	mu    sync.Mutex
	stack []Handler

	// core is the fallback consumer invoked when no overlay handler is
	// active, or the topmost active handler declined the event. This is the
	// core's routed-keys-only entry point (spec §1: "core receives
	// routed keys only").
	core Handler
}

// New creates a Router. core may be nil if the caller only wants to
// know whether some overlay consumed the event.
func New(core Handler) *Router {
	return &Router{core: core}
}

// Push adds a handler to the top of the overlay stack and returns a
// function that pops it back off — callers should treat overlays as
// strictly nested (push on open, release on close).
func (r *Router) Push(h Handler) (release func()) {
	// Each push gets its own pointer so release compares by identity;
	// comparing h directly would panic for uncomparable handler types
	// such as HandlerFunc.
	entry := Handler(&stackEntry{Handler: h})
	r.mu.Lock()
	r.stack = append(r.stack, entry)
	r.mu.Unlock()

	released := false
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if released {
			return
		}
		released = true
		for i := len(r.stack) - 1; i >= 0; i-- {
			if r.stack[i] == entry {
				r.stack = append(r.stack[:i], r.stack[i+1:]...)
				return
			}
		}
	}
}

// stackEntry wraps one pushed Handler so each push has a distinct identity.
type stackEntry struct {
	Handler
}

// Dispatch routes k to the topmost IsActive()==true handler on the
// stack; if it declines (or none is active), the core handler receives
// it. Returns whether the event was consumed by anything.
func (r *Router) Dispatch(k Key) bool {
	r.mu.Lock()
	stack := make([]Handler, len(r.stack))
	copy(stack, r.stack)
	core := r.core
	r.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		h := stack[i]
		if !h.IsActive() {
			continue
		}
		if h.Handle(k) {
			return true
		}
		// Spec §4.J: the top *active* handler receives the event — an
		// active overlay that declines does not fall through to a
		// lower overlay, only to the core.
		break
	}

	if core != nil {
		return core.Handle(k)
	}
	return false
}

// HandlerFunc adapts two plain functions to the Handler interface for
// callers that don't want to define a named type.
type HandlerFunc struct {
	Active func() bool
	Consume func(Key) bool
}

func (f HandlerFunc) IsActive() bool {
	if f.Active == nil {
		return true
	}
	return f.Active()
}

func (f HandlerFunc) Handle(k Key) bool {
	if f.Consume == nil {
		return false
	}
	return f.Consume(k)
}
