package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/artpar/masterdata/domain/group"
	"github.com/artpar/masterdata/ports"
)

// GroupStore implements ports.GroupStore using SQLite.
type GroupStore struct {
	db *DB
}

// NewGroupStore creates a new SQLite group store.
func NewGroupStore(db *DB) *GroupStore {
	return &GroupStore{db: db}
}

// Get retrieves a group by ID.
func (s *GroupStore) Get(ctx context.Context, groupID string) (group.Group, error) {
	var g group.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, group_name FROM groups WHERE group_id = ?`, groupID).Scan(&g.GroupID, &g.GroupName)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Group{}, ports.ErrNotFound
	}
	if err != nil {
		return group.Group{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

// List returns all groups ordered by ID.
func (s *GroupStore) List(ctx context.Context) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, group_name FROM groups ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		var g group.Group
		if err := rows.Scan(&g.GroupID, &g.GroupName); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Create stores a new group.
func (s *GroupStore) Create(ctx context.Context, g group.Group) error {
	if err := group.Validate(g); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (group_id, group_name) VALUES (?, ?)`, g.GroupID, g.GroupName)
	if isUniqueViolation(err) {
		return ports.ErrExists
	}
	if err != nil {
		return fmt.Errorf("create group %s: %w", g.GroupID, err)
	}
	return nil
}

var _ ports.GroupStore = (*GroupStore)(nil)
