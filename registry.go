package displayloop

import (
	"slices"
)

// WindowRef is a by-id back-reference to a window. It must be re-resolved
// through the [Registry] before use; once the window is removed it never
// resolves again, even if the server reuses the id.
type WindowRef struct {
	ID         WindowID
	generation uint64
}

// Registry maps server-assigned window ids to live windows. It is owned by
// the loop goroutine and is not safe for concurrent use.
type Registry struct {
	windows map[WindowID]*Window
	// nextGen starts at 1 so that the zero WindowRef never resolves
	nextGen uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		windows: make(map[WindowID]*Window),
		nextGen: 1,
	}
}

// Insert adds w under its id, replacing (and invalidating refs to) any
// window already registered with that id.
func (r *Registry) Insert(w *Window) {
	w.ref = WindowRef{ID: w.id, generation: r.nextGen}
	r.nextGen++
	r.windows[w.id] = w
}

// Remove deletes the entry for id, returning the number of windows left.
func (r *Registry) Remove(id WindowID) int {
	if w, ok := r.windows[id]; ok {
		w.removed = true
		delete(r.windows, id)
	}
	return len(r.windows)
}

// Lookup returns the live window registered under id.
func (r *Registry) Lookup(id WindowID) (*Window, bool) {
	w, ok := r.windows[id]
	return w, ok
}

// Resolve returns the window ref points at, failing if that window has
// been removed.
func (r *Registry) Resolve(ref WindowRef) (*Window, bool) {
	w, ok := r.windows[ref.ID]
	if !ok || w.ref.generation != ref.generation {
		return nil, false
	}
	return w, true
}

// Snapshot returns the live windows ordered by id. The slice is owned by
// the caller, so the registry may be mutated while iterating it.
func (r *Registry) Snapshot() []*Window {
	out := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *Window) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Len returns the number of live windows.
func (r *Registry) Len() int {
	return len(r.windows)
}
