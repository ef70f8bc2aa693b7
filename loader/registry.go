package loader

import (
	"sync"

	"github.com/zuul-go/zuul/filters"
)

// Registry is the process wide table of live filter instances keyed by
// filter name. Writes come from the loader, reads from request workers.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]filters.Filter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{filters: make(map[string]filters.Filter)}
}

// Put stores or replaces the filter instance for a name.
func (r *Registry) Put(name string, f filters.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = f
}

// Get returns the current instance for a name, or nil.
func (r *Registry) Get(name string) filters.Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filters[name]
}

// Remove drops the instance for a name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, name)
}

// Snapshot returns a copy of the current name to filter mapping.
func (r *Registry) Snapshot() map[string]filters.Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[string]filters.Filter, len(r.filters))
	for name, f := range r.filters {
		m[name] = f
	}
	return m
}
