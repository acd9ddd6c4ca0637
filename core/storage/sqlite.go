package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const documentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    doc_id     TEXT NOT NULL UNIQUE,
    body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// SQLiteStore implements Store on a single SQLite table. Document bodies are
// JSON and matched with the JSON1 functions.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore opens path and prepares the documents table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStoreFromDB uses an existing connection. The caller keeps
// ownership of db.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(documentsDDL); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert adds a document to collection.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, body) VALUES (?, ?, ?)`,
		collection, uuid.NewString(), string(body))
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// FindOne returns the first matching document in insertion order.
func (s *SQLiteStore) FindOne(ctx context.Context, collection string, f Filter) (Document, error) {
	docs, err := s.Find(ctx, collection, Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find returns matching documents.
func (s *SQLiteStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	where, args, err := buildWhere(collection, q.Filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT body FROM documents WHERE " + where
	if q.Sort != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY json_extract(body, ?) %s, seq %s", dir, dir)
		args = append(args, jsonPath(q.Sort))
	} else {
		query += " ORDER BY seq"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(q.Skip, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of matching documents.
func (s *SQLiteStore) Count(ctx context.Context, collection string, f Filter) (int64, error) {
	where, args, err := buildWhere(collection, f)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Update merges set into every matching document.
func (s *SQLiteStore) Update(ctx context.Context, collection string, f Filter, set Document) (int64, error) {
	where, args, err := buildWhere(collection, f)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT seq, body FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", collection, err)
	}

	type pending struct {
		seq  int64
		body string
	}
	var updates []pending
	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan: %w", err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			rows.Close()
			return 0, err
		}
		for k, v := range set {
			doc[k] = v
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("encode document: %w", err)
		}
		updates = append(updates, pending{seq: seq, body: string(merged)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET body = ? WHERE seq = ?", u.body, u.seq); err != nil {
			return 0, fmt.Errorf("update %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(updates)), nil
}

// Delete removes matching documents.
func (s *SQLiteStore) Delete(ctx context.Context, collection string, f Filter) (int64, error) {
	where, args, err := buildWhere(collection, f)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// Drop removes every document in collection.
func (s *SQLiteStore) Drop(ctx context.Context, collection string) (int64, error) {
	return s.Delete(ctx, collection, Filter{})
}

// Close closes the connection if the store opened it.
func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func decodeDocument(body string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// jsonPath quotes a field name as a JSON1 path.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

// buildWhere renders a filter as a SQL predicate over the documents table.
func buildWhere(collection string, f Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, c := range f.All {
		clause, cargs, err := buildCondition(c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, cargs...)
	}

	if len(f.Any) > 0 {
		var alts []string
		for _, c := range f.Any {
			clause, cargs, err := buildCondition(c)
			if err != nil {
				return "", nil, err
			}
			alts = append(alts, clause)
			args = append(args, cargs...)
		}
		clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), args, nil
}

func buildCondition(c Condition) (string, []any, error) {
	const extract = "json_extract(body, ?)"
	path := jsonPath(c.Field)

	switch c.Op {
	case OpEq, OpGt, OpGte, OpLt, OpLte:
		if c.Value == nil {
			if c.Op == OpEq {
				return extract + " IS NULL", []any{path}, nil
			}
			return "0", nil, nil
		}
		return fmt.Sprintf("%s %s ?", extract, sqlOperator(c.Op)), []any{path, bindValue(c.Value)}, nil

	case OpNe:
		if c.Value == nil {
			return extract + " IS NOT NULL", []any{path}, nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", extract, extract), []any{path, path, bindValue(c.Value)}, nil

	case OpIn, OpNin:
		values, ok := c.Value.([]any)
		if !ok {
			return "", nil, fmt.Errorf("operator %s on %s needs a list", c.Op, c.Field)
		}
		if len(values) == 0 {
			if c.Op == OpIn {
				return "0", nil, nil
			}
			return "1", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		args := []any{path}
		if c.Op == OpNin {
			args = append(args, path)
		}
		for _, v := range values {
			args = append(args, bindValue(v))
		}
		if c.Op == OpIn {
			return fmt.Sprintf("%s IN (%s)", extract, marks), args, nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", extract, extract, marks), args, nil

	case OpContains:
		pattern := "%" + escapeLike(strings.ToLower(fmt.Sprint(c.Value))) + "%"
		return fmt.Sprintf("(json_type(body, ?) = 'text' AND LOWER(%s) LIKE ? ESCAPE '\\')", extract),
			[]any{path, path, pattern}, nil
	}

	return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
}

func sqlOperator(op Op) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

// bindValue converts a value into something json_extract can compare
// against. Composite values are compared by their minified JSON text.
func bindValue(v any) any {
	switch val := v.(type) {
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case bool:
		if val {
			return 1
		}
		return 0
	}
	return v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
