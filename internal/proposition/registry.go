package proposition

import "sync"

// Registry is the owning registry items resolve their propositions through.
//
// It replaces a language-level weak pointer with an explicit handle: once a
// proposition is released (cache eviction, teardown), Resolve returns
// (nil, false) and every item handle pointing at it fails soft.
//
// Thread-safety: safe for concurrent use. Resolution happens from tracking
// callbacks that are not guaranteed to run on the serialized worker.
type Registry struct {
	mu    sync.RWMutex
	props map[string]*Proposition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{props: make(map[string]*Proposition)}
}

// Register records the proposition and wires every item's owner handle.
// Re-registering the same unique id replaces the previous owner.
func (r *Registry) Register(p *Proposition) {
	if p == nil || p.UniqueID == "" {
		return
	}
	r.mu.Lock()
	r.props[p.UniqueID] = p
	r.mu.Unlock()

	for _, it := range p.Items {
		it.owner = ownerHandle{registry: r, id: p.UniqueID}
	}
}

// Resolve looks up a proposition by unique id.
func (r *Registry) Resolve(id string) (*Proposition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.props[id]
	return p, ok
}

// Release drops a proposition from the registry. Item handles pointing at
// it resolve to not-found afterwards.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.props, id)
}

// Clear drops every registered proposition. Called at extension teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.props = make(map[string]*Proposition)
}

// Len returns the number of registered propositions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.props)
}
