package exporter

import (
	"sync"
)

// Registry is an ordered set of exporters keyed by name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	exporters []Exporter
}

// NewRegistry creates a registry holding exporters in the given order.
// Duplicate names collapse onto the first position, last one wins.
func NewRegistry(exporters ...Exporter) *Registry {
	r := &Registry{}
	for _, e := range exporters {
		r.Register(e)
	}
	return r
}

// Register appends e. If an exporter with the same name is already
// registered it is replaced in its original position. Nil exporters are
// ignored.
func (r *Registry) Register(e Exporter) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	for i, existing := range r.exporters {
		if existing.Name() == name {
			r.exporters[i] = e
			return
		}
	}
	r.exporters = append(r.exporters, e)
}

// Unregister removes the exporter with the given name. It is a no-op if no
// such exporter exists.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.exporters {
		if existing.Name() == name {
			r.exporters = append(r.exporters[:i:i], r.exporters[i+1:]...)
			return
		}
	}
}

// Get returns the exporter registered under name, or nil.
func (r *Registry) Get(name string) Exporter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.exporters {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// List returns a snapshot of the registered exporters in order. The
// snapshot is safe to iterate while the registry changes.
func (r *Registry) List() []Exporter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Exporter, len(r.exporters))
	copy(out, r.exporters)
	return out
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.exporters))
	for i, e := range r.exporters {
		names[i] = e.Name()
	}
	return names
}

// Len returns the number of registered exporters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exporters)
}
