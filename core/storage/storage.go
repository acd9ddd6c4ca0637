// Package storage provides a schemaless document store.
// Documents live in named collections and are matched by arbitrary field
// values; the record engine layers typed accessors on top of it.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("document not found")

// Document is one stored document. Values are JSON-compatible: string,
// float64, bool, nil, []any and map[string]any.
type Document map[string]any

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpNin Op = "nin"

	// OpContains is a case-insensitive substring match on text values.
	OpContains Op = "contains"
)

// Valid reports whether o is a known operator.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpContains:
		return true
	}
	return false
}

// Condition compares one field against a value. For OpIn and OpNin the
// value is a []any. A missing field satisfies OpNe and OpNin only.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Filter selects documents. Every condition in All must hold and, when Any
// is non-empty, at least one condition in Any must hold.
type Filter struct {
	All []Condition
	Any []Condition
}

// Where builds a filter from conjunctive conditions.
func Where(conds ...Condition) Filter {
	return Filter{All: conds}
}

// Query is a filtered, sorted, paginated read.
type Query struct {
	Filter Filter

	// Sort is the field to order by. Empty means insertion order.
	Sort string
	Desc bool

	Skip  int
	Limit int // 0 means unbounded
}

// Store is a schemaless collection-style store.
type Store interface {
	// Insert adds a document to collection.
	Insert(ctx context.Context, collection string, doc Document) error

	// FindOne returns the first matching document or ErrNotFound.
	FindOne(ctx context.Context, collection string, f Filter) (Document, error)

	// Find returns matching documents.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, collection string, f Filter) (int64, error)

	// Update merges set into every matching document and returns the
	// number of documents changed.
	Update(ctx context.Context, collection string, f Filter, set Document) (int64, error)

	// Delete removes matching documents and returns how many were removed.
	Delete(ctx context.Context, collection string, f Filter) (int64, error)

	// Drop removes every document in collection.
	Drop(ctx context.Context, collection string) (int64, error)

	// Close releases resources.
	Close() error
}
