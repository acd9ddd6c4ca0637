// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/ports"
)

// SchemaStore is an in-memory implementation of ports.SchemaStore.
type SchemaStore struct {
	mu      sync.RWMutex
	schemas map[string]schema.Schema // by lower-cased name
}

// NewSchemaStore creates a new in-memory schema store.
func NewSchemaStore() *SchemaStore {
	return &SchemaStore{
		schemas: make(map[string]schema.Schema),
	}
}

// Get retrieves a schema by case-insensitive name.
func (s *SchemaStore) Get(ctx context.Context, name string) (schema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schemas[schema.Key(name)]
	if !ok {
		return schema.Schema{}, ports.ErrNotFound
	}
	return sc.Clone(), nil
}

// List returns all schemas ordered by name.
func (s *SchemaStore) List(ctx context.Context) ([]schema.Schema, error) {
	return s.filter(func(schema.Schema) bool { return true }), nil
}

// ListByGroup returns the schemas tagged with groupID.
func (s *SchemaStore) ListByGroup(ctx context.Context, groupID string) ([]schema.Schema, error) {
	return s.filter(func(sc schema.Schema) bool { return sc.GroupID == groupID }), nil
}

// Create stores a new schema.
func (s *SchemaStore) Create(ctx context.Context, sc schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[sc.Key()]; ok {
		return ports.ErrExists
	}
	s.schemas[sc.Key()] = sc.Clone()
	return nil
}

// Update replaces a stored schema.
func (s *SchemaStore) Update(ctx context.Context, sc schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[sc.Key()]; !ok {
		return ports.ErrNotFound
	}
	s.schemas[sc.Key()] = sc.Clone()
	return nil
}

// Delete removes a schema.
func (s *SchemaStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := schema.Key(name)
	if _, ok := s.schemas[key]; !ok {
		return ports.ErrNotFound
	}
	delete(s.schemas, key)
	return nil
}

func (s *SchemaStore) filter(keep func(schema.Schema) bool) []schema.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schema.Schema
	for _, sc := range s.schemas {
		if keep(sc) {
			out = append(out, sc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

var _ ports.SchemaStore = (*SchemaStore)(nil)
