package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/masterdata/domain/group"
	"github.com/artpar/masterdata/ports"
)

// GroupStore is an in-memory implementation of ports.GroupStore.
type GroupStore struct {
	mu     sync.RWMutex
	groups map[string]group.Group
}

// NewGroupStore creates a new in-memory group store seeded with groups.
func NewGroupStore(groups ...group.Group) *GroupStore {
	s := &GroupStore{groups: make(map[string]group.Group)}
	for _, g := range groups {
		s.groups[g.GroupID] = g
	}
	return s
}

// Get retrieves a group by ID.
func (s *GroupStore) Get(ctx context.Context, groupID string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return group.Group{}, ports.ErrNotFound
	}
	return g, nil
}

// List returns all groups ordered by ID.
func (s *GroupStore) List(ctx context.Context) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]group.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// Create stores a new group.
func (s *GroupStore) Create(ctx context.Context, g group.Group) error {
	if err := group.Validate(g); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.GroupID]; ok {
		return ports.ErrExists
	}
	s.groups[g.GroupID] = g
	return nil
}

var _ ports.GroupStore = (*GroupStore)(nil)
