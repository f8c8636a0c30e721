package document

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

// Registry maps locations to open models.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Get returns the model open at loc.
func (r *Registry) Get(loc models.Location) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[loc.String()]
	return m, ok
}

// Put registers m under its current location. It fails with
// apperr.ErrAlreadyExists when another model holds that location.
func (r *Registry) Put(m *Model) error {
	key := m.Location().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[key]; ok && existing != m {
		return fmt.Errorf("document: %s: %w", key, apperr.ErrAlreadyExists)
	}
	r.models[key] = m
	return nil
}

// Delete forgets the model at loc.
func (r *Registry) Delete(loc models.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, loc.String())
}

// Rekey moves the model registered at from to to, after a save-as.
func (r *Registry) Rekey(from, to models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[from.String()]
	if !ok {
		return fmt.Errorf("document: %s: %w", from, apperr.ErrNotOpen)
	}
	if from.String() == to.String() {
		return nil
	}
	if existing, ok := r.models[to.String()]; ok && existing != m {
		return fmt.Errorf("document: %s: %w", to, apperr.ErrAlreadyExists)
	}
	delete(r.models, from.String())
	r.models[to.String()] = m
	return nil
}

// List returns every open model ordered by location.
func (r *Registry) List() []*Model {
	r.mu.RLock()
	keys := make([]string, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)

	out := make([]*Model, 0, len(keys))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		if m, ok := r.models[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Route delivers c to the model open at loc.
func (r *Registry) Route(ctx context.Context, loc models.Location, c change.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, ok := r.Get(loc)
	if !ok {
		return fmt.Errorf("document: %s: %w", loc, apperr.ErrNotOpen)
	}
	return m.Update(c)
}
