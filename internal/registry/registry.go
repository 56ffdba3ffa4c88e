// registry.go — Registry: the name -> window map, stream -> subscriber
// table, and per-window notifier map. Built once from an ordered list of
// window.Def values and read-only thereafter, the same one-struct-per-file,
// name-keyed-map convention the teacher uses for its session table
// (internal/session/sessions.go) — generalized here from a mutable runtime
// map to an immutable registry built at startup.
package registry

import (
	"fmt"

	"github.com/warpfusion/warpfusion/internal/window"
)

// Subscriber names one (window, dist_mode) pairing a stream feeds into.
type Subscriber struct {
	WindowName string
	DistMode   window.DistMode
}

// Registry is the window/subscription/notifier table the Router, Evictor,
// and rule tasks share. Safe for concurrent read-only use after Build
// returns; it exposes no mutation after construction.
type Registry struct {
	windows     map[string]*window.Window
	notifiers   map[string]*Notifier
	subscribers map[string][]Subscriber
	order       []string // window names in definition order, for deterministic iteration
}

// Build constructs a Registry from an ordered list of window definitions.
// Fails if two definitions share a name.
func Build(defs []window.Def) (*Registry, error) {
	r := &Registry{
		windows:     make(map[string]*window.Window, len(defs)),
		notifiers:   make(map[string]*Notifier, len(defs)),
		subscribers: make(map[string][]Subscriber),
		order:       make([]string, 0, len(defs)),
	}

	for _, def := range defs {
		if _, exists := r.windows[def.Name]; exists {
			return nil, fmt.Errorf("registry: window name %q declared more than once: %w", def.Name, ErrWindowBuild)
		}
		r.windows[def.Name] = window.New(def)
		r.notifiers[def.Name] = NewNotifier()
		r.order = append(r.order, def.Name)

		for _, stream := range def.Streams {
			r.subscribers[stream] = append(r.subscribers[stream], Subscriber{
				WindowName: def.Name,
				DistMode:   def.DistMode,
			})
		}
	}

	return r, nil
}

// GetWindow returns the named window's shared handle. The returned
// pointer is shared and protected by the window's own reader-writer lock;
// the Registry performs no additional synchronization.
func (r *Registry) GetWindow(name string) (*window.Window, bool) {
	w, ok := r.windows[name]
	return w, ok
}

// GetNotifier returns the one notifier belonging to the named window.
func (r *Registry) GetNotifier(name string) (*Notifier, bool) {
	n, ok := r.notifiers[name]
	return n, ok
}

// SubscribersOf returns the (window_name, dist_mode) pairs subscribed to a
// stream. The returned slice must not be mutated by callers; it is the
// registry's own immutable backing storage.
func (r *Registry) SubscribersOf(stream string) []Subscriber {
	return r.subscribers[stream]
}

// WindowNames returns every window name in definition order, for code
// that must iterate deterministically (e.g. the evictor's tie-break).
func (r *Registry) WindowNames() []string {
	return r.order
}
