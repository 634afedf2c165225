// Package registry holds the immutable set of configured news sources.
// The registry is loaded once at startup; pollers and extraction workers
// read it concurrently without locking.
package registry

import "news-engine/models"

// Registry maps source IDs to their configuration.
type Registry struct {
	byID  map[string]*models.Source
	order []*models.Source
}

// New builds a registry from the loaded sources. Later duplicates of an
// ID replace earlier ones.
func New(sources []*models.Source) *Registry {
	r := &Registry{byID: make(map[string]*models.Source, len(sources))}
	for _, s := range sources {
		if _, exists := r.byID[s.ID]; !exists {
			r.order = append(r.order, s)
		} else {
			for i, prev := range r.order {
				if prev.ID == s.ID {
					r.order[i] = s
					break
				}
			}
		}
		r.byID[s.ID] = s
	}
	return r
}

// Lookup returns the source for id, or false when it is not configured.
func (r *Registry) Lookup(id string) (*models.Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns the sources in registration order.
func (r *Registry) All() []*models.Source {
	return r.order
}

// Len reports the number of configured sources.
func (r *Registry) Len() int {
	return len(r.byID)
}
