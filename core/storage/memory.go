package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// MemoryStore implements Store in process memory. Documents are copied
// through the JSON codec on the way in and out, so callers observe the
// same value types as with SQLiteStore.
type MemoryStore struct {
	mu          sync.RWMutex
	seq         int64
	collections map[string][]memoryEntry
}

type memoryEntry struct {
	seq int64
	doc Document
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]memoryEntry)}
}

// Insert adds a document to collection.
func (m *MemoryStore) Insert(_ context.Context, collection string, doc Document) error {
	cp, err := copyDocument(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.collections[collection] = append(m.collections[collection], memoryEntry{seq: m.seq, doc: cp})
	return nil
}

// FindOne returns the first matching document in insertion order.
func (m *MemoryStore) FindOne(ctx context.Context, collection string, f Filter) (Document, error) {
	docs, err := m.Find(ctx, collection, Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find returns matching documents.
func (m *MemoryStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	var matched []memoryEntry
	for _, e := range m.collections[collection] {
		ok, err := matches(e.doc, q.Filter)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	if q.Sort != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := order(matched[i].doc[q.Sort], matched[j].doc[q.Sort])
			if c == 0 {
				c = cmpInt(matched[i].seq, matched[j].seq)
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	start := min(max(q.Skip, 0), len(matched))
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	out := make([]Document, 0, end-start)
	for _, e := range matched[start:end] {
		cp, err := copyDocument(e.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Count returns the number of matching documents.
func (m *MemoryStore) Count(_ context.Context, collection string, f Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.collections[collection] {
		ok, err := matches(e.doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Update merges set into every matching document.
func (m *MemoryStore) Update(_ context.Context, collection string, f Filter, set Document) (int64, error) {
	patch, err := copyDocument(set)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.collections[collection] {
		ok, err := matches(e.doc, f)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		for k, v := range patch {
			e.doc[k] = v
		}
		n++
	}
	return n, nil
}

// Delete removes matching documents.
func (m *MemoryStore) Delete(_ context.Context, collection string, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.collections[collection]
	kept := make([]memoryEntry, 0, len(entries))
	var n int64
	for _, e := range entries {
		ok, err := matches(e.doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.collections[collection] = kept
	return n, nil
}

// Drop removes every document in collection.
func (m *MemoryStore) Drop(_ context.Context, collection string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.collections[collection]))
	delete(m.collections, collection)
	return n, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func copyDocument(doc Document) (Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func matches(doc Document, f Filter) (bool, error) {
	for _, c := range f.All {
		ok, err := matchCondition(doc, c)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(f.Any) == 0 {
		return true, nil
	}
	for _, c := range f.Any {
		ok, err := matchCondition(doc, c)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchCondition(doc Document, c Condition) (bool, error) {
	v, present := doc[c.Field]
	if v == nil {
		present = false
	}
	want := normalize(c.Value)

	switch c.Op {
	case OpEq:
		if want == nil {
			return !present, nil
		}
		return present && equal(v, want), nil
	case OpNe:
		if want == nil {
			return present, nil
		}
		return !present || !equal(v, want), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !present || want == nil || !sameKind(v, want) {
			return false, nil
		}
		cmp := order(v, want)
		switch c.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn, OpNin:
		values, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator %s on %s needs a list", c.Op, c.Field)
		}
		found := false
		if present {
			for _, candidate := range values {
				if equal(v, normalize(candidate)) {
					found = true
					break
				}
			}
		}
		if c.Op == OpIn {
			return found, nil
		}
		return !present || !found, nil
	case OpContains:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(c.Value))), nil
	}
	return false, fmt.Errorf("unsupported operator %q", c.Op)
}

// normalize maps Go values onto the JSON value space of stored documents.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	case []any, map[string]any:
		return val
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func sameKind(a, b any) bool {
	switch a.(type) {
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return false
}

// order compares two stored values. Values of different kinds order as
// nil < bool < number < text < other.
func order(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
