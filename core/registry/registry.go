// Package registry is the accessor cache: the live mapping from schema name
// to the accessor that serves its records. Readers always observe a whole
// entry; replacement and removal are atomic.
package registry

import (
	"sort"
	"sync"

	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/convention"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
)

// Entry pairs a schema definition with its accessor.
type Entry struct {
	Schema   schema.Schema
	Accessor *accessor.Accessor
}

// Registry maps lower-cased schema names to entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Get returns the entry for name, matched case-insensitively.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[schema.Key(name)]
	r.mu.RUnlock()

	if !ok {
		return Entry{}, errs.NotFound("schema %q not found", name)
	}
	return e, nil
}

// Has reports whether name is cached.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[schema.Key(name)]
	return ok
}

// Put installs e, replacing any entry with the same name.
func (r *Registry) Put(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Schema.Key()] = e
}

// Remove evicts name. It reports whether an entry was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := schema.Key(name)
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// ReplaceAll swaps the whole cache for entries in one step.
func (r *Registry) ReplaceAll(entries []Entry) {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		next[e.Schema.Key()] = e
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
}

// List returns all entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Schema.Key() < out[j].Schema.Key()
	})
	return out
}

// Layouts returns the storage layout of every built entry, sorted by name.
func (r *Registry) Layouts() []convention.Derived {
	entries := r.List()
	out := make([]convention.Derived, 0, len(entries))
	for _, e := range entries {
		if e.Accessor != nil {
			out = append(out, e.Accessor.Layout())
		}
	}
	return out
}

// Len returns the number of cached schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
