package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/ports"
)

// metadataDocument is the persisted shape of one schema.
type metadataDocument struct {
	Schema schema.Schema `bson:"schema"`
}

// SchemaStore implements ports.SchemaStore using SQLite. Each definition is
// stored as a BSON document.
type SchemaStore struct {
	db    *DB
	clock ports.Clock
}

// NewSchemaStore creates a new SQLite schema store.
func NewSchemaStore(db *DB, clock ports.Clock) *SchemaStore {
	return &SchemaStore{db: db, clock: clock}
}

// Get retrieves a schema by case-insensitive name.
func (s *SchemaStore) Get(ctx context.Context, name string) (schema.Schema, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM schema_metadata WHERE name_key = ?`, schema.Key(name)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Schema{}, ports.ErrNotFound
	}
	if err != nil {
		return schema.Schema{}, fmt.Errorf("get schema %s: %w", name, err)
	}
	return decodeSchema(doc)
}

// List returns every schema ordered by name.
func (s *SchemaStore) List(ctx context.Context) ([]schema.Schema, error) {
	return s.query(ctx, `SELECT document FROM schema_metadata ORDER BY name_key`)
}

// ListByGroup returns the schemas tagged with groupID.
func (s *SchemaStore) ListByGroup(ctx context.Context, groupID string) ([]schema.Schema, error) {
	return s.query(ctx, `SELECT document FROM schema_metadata WHERE group_id = ? ORDER BY name_key`, groupID)
}

// Create stores a new schema.
func (s *SchemaStore) Create(ctx context.Context, sc schema.Schema) error {
	doc, err := encodeSchema(sc)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schema_metadata (name_key, name, group_id, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sc.Key(), sc.Name, nullString(sc.GroupID), doc, now, now)
	if isUniqueViolation(err) {
		return ports.ErrExists
	}
	if err != nil {
		return fmt.Errorf("create schema %s: %w", sc.Name, err)
	}
	return nil
}

// Update replaces a stored schema.
func (s *SchemaStore) Update(ctx context.Context, sc schema.Schema) error {
	doc, err := encodeSchema(sc)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE schema_metadata
		SET name = ?, group_id = ?, document = ?, updated_at = ?
		WHERE name_key = ?
	`, sc.Name, nullString(sc.GroupID), doc, s.clock.Now(), sc.Key())
	if err != nil {
		return fmt.Errorf("update schema %s: %w", sc.Name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Delete removes a schema.
func (s *SchemaStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schema_metadata WHERE name_key = ?`, schema.Key(name))
	if err != nil {
		return fmt.Errorf("delete schema %s: %w", name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *SchemaStore) query(ctx context.Context, query string, args ...any) ([]schema.Schema, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var out []schema.Schema
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		sc, err := decodeSchema(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func encodeSchema(sc schema.Schema) ([]byte, error) {
	doc, err := bson.Marshal(metadataDocument{Schema: sc})
	if err != nil {
		return nil, fmt.Errorf("encode schema %s: %w", sc.Name, err)
	}
	return doc, nil
}

// decodeSchema reads a metadata document. Embedded documents in default
// values decode to maps so they coerce like JSON objects.
func decodeSchema(data []byte) (schema.Schema, error) {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(data))
	if err != nil {
		return schema.Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	dec.DefaultDocumentM()

	var doc metadataDocument
	if err := dec.Decode(&doc); err != nil {
		return schema.Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	return doc.Schema, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
var _ ports.SchemaStore = (*SchemaStore)(nil)
