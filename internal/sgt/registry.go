// Package sgt implements the Security Group Tag lifecycle (C7): a
// stable tag registry decoupled from cluster identity, current
// membership, assignment history, and the stability guard that
// suppresses automated rebinding under high churn.
package sgt

import (
	"sync"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Registry allocates and tracks SGT values. Values are never reused or
// renumbered. Writes serialize through a single lock; reads take an
// immutable snapshot of the slice, following the teacher's
// AddressWatchlist guarded-map pattern generalized to snapshot-on-read
// per §5/§9.
type Registry struct {
	mu       sync.RWMutex
	byValue  map[uint32]models.SGT
	byName   map[string]uint32
	nextVal  uint32
}

// NewRegistry builds a registry allocating values starting at baseValue
// (default 2; 0 and 1 reserved per §4.7).
func NewRegistry(baseValue uint32) *Registry {
	if baseValue < 2 {
		baseValue = 2
	}
	return &Registry{
		byValue: make(map[uint32]models.SGT),
		byName:  make(map[string]uint32),
		nextVal: baseValue,
	}
}

// Allocate mints a new SGT with the next sequential value. Fails if
// name is already in use among active SGTs.
func (r *Registry) Allocate(name, category, description string) (models.SGT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if s, ok2 := r.byValue[existing]; ok2 && s.Active {
			return models.SGT{}, models.NewError(models.ConfigurationInvalid, "SGT name already active: "+name, nil)
		}
	}

	sgt := models.SGT{
		Value:       r.nextVal,
		Name:        name,
		Category:    category,
		Description: description,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	r.byValue[sgt.Value] = sgt
	r.byName[name] = sgt.Value
	r.nextVal++
	return sgt, nil
}

// Get returns the SGT for a value.
func (r *Registry) Get(value uint32) (models.SGT, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byValue[value]
	return s, ok
}

// Lookup finds an active SGT by name.
func (r *Registry) Lookup(name string) (models.SGT, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byName[name]
	if !ok {
		return models.SGT{}, false
	}
	s := r.byValue[v]
	return s, s.Active
}

// Deprecate marks an SGT inactive without deleting it — history rows
// may still reference it.
func (r *Registry) Deprecate(value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byValue[value]; ok {
		s.Active = false
		r.byValue[value] = s
	}
}

// Snapshot returns an immutable copy of all registered SGTs, for
// read-mostly consumers (the matrix and policy stages).
func (r *Registry) Snapshot() []models.SGT {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SGT, 0, len(r.byValue))
	for _, s := range r.byValue {
		out = append(out, s)
	}
	return out
}
