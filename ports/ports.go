// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/domain/group"
)

var (
	// ErrNotFound is returned by stores when the requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned by stores when creating an item that already exists.
	ErrExists = errors.New("already exists")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints record identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// SchemaStore persists schema metadata documents.
type SchemaStore interface {
	// Get returns the schema whose name matches case-insensitively.
	Get(ctx context.Context, name string) (schema.Schema, error)

	// List returns every persisted schema ordered by name.
	List(ctx context.Context) ([]schema.Schema, error)

	// ListByGroup returns the schemas tagged with groupID.
	ListByGroup(ctx context.Context, groupID string) ([]schema.Schema, error)

	// Create stores a new schema.
	Create(ctx context.Context, s schema.Schema) error

	// Update replaces the stored schema with the same name.
	Update(ctx context.Context, s schema.Schema) error

	// Delete removes the schema.
	Delete(ctx context.Context, name string) error
}

// GroupStore reads externally owned groups.
type GroupStore interface {
	Get(ctx context.Context, groupID string) (group.Group, error)
	List(ctx context.Context) ([]group.Group, error)
	Create(ctx context.Context, g group.Group) error
}
