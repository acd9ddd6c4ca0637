// Package accessor builds runtime handles that store and query the records
// of one schema. An Accessor is the dynamic equivalent of a typed table: it
// mints identifiers, injects system fields, applies defaults, enforces
// uniqueness and converts values between their typed and stored forms.
package accessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/masterdata/core/convention"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/core/storage"
	"github.com/artpar/masterdata/core/validation"
	"github.com/artpar/masterdata/ports"
)

// TimeLayout is the stored form of date values. It is fixed width in UTC so
// stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one instance of a schema: field name to typed value.
type Record map[string]any

// ID returns the value of the identifier field.
func (r Record) ID(idField string) string {
	id, _ := r[idField].(string)
	return id
}

// Builder creates accessors that share a store, id generator and clock.
// Every accessor built for the same schema name shares one write lock, so a
// rebuilt accessor and the one it replaced never write concurrently.
type Builder struct {
	store storage.Store
	ids   ports.IDGenerator
	clock ports.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBuilder creates a Builder.
func NewBuilder(store storage.Store, ids ports.IDGenerator, clock ports.Clock) *Builder {
	return &Builder{store: store, ids: ids, clock: clock, locks: make(map[string]*sync.Mutex)}
}

// writeLock returns the write lock shared by accessors of the named schema.
func (b *Builder) writeLock(name string) *sync.Mutex {
	key := schema.Key(name)

	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	return l
}

// Store returns the underlying document store.
func (b *Builder) Store() storage.Store {
	return b.store
}

// Build derives the storage layout of s and returns its accessor.
// An unknown relationship type fails with a validation error.
func (b *Builder) Build(s schema.Schema) (*Accessor, error) {
	layout, err := convention.Derive(s)
	if err != nil {
		return nil, err
	}

	defaults := make(map[string]any)
	for _, f := range layout.Fields {
		if f.Default == nil {
			continue
		}
		v, err := validation.Coerce(schema.Field{Name: f.Name, Type: f.Type}, f.Default)
		if err != nil {
			return nil, err
		}
		defaults[f.Name] = v
	}

	return &Accessor{
		layout:   layout,
		defaults: defaults,
		store:    b.store,
		ids:      b.ids,
		clock:    b.clock,
		mu:       b.writeLock(s.Name),
	}, nil
}

// Accessor stores and queries the records of one schema.
type Accessor struct {
	layout   convention.Derived
	defaults map[string]any

	store storage.Store
	ids   ports.IDGenerator
	clock ports.Clock

	// mu serializes writes so unique checks and the write that follows
	// them are atomic within the process. It is shared with every other
	// accessor built for the same schema name.
	mu *sync.Mutex
}

// Schema returns the definition the accessor was built from.
func (a *Accessor) Schema() schema.Schema {
	return a.layout.Source
}

// Layout returns the derived storage layout.
func (a *Accessor) Layout() convention.Derived {
	return a.layout
}

// IDField returns the name of the generated identifier field.
func (a *Accessor) IDField() string {
	return a.layout.IDField
}

// Collection returns the case-preserving collection name.
func (a *Accessor) Collection() string {
	return a.layout.Collection
}

// Create stores a new record built from values, which must already be
// coerced. Unknown and system fields in values are ignored.
func (a *Accessor) Create(ctx context.Context, values map[string]any) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now().UTC()
	rec := Record{
		a.layout.IDField:     a.ids.New(),
		convention.CreatedAt: now,
		convention.UpdatedAt: now,
	}

	for _, f := range a.layout.Fields {
		if f.Implicit {
			continue
		}
		if v, ok := values[f.Name]; ok && v != nil {
			rec[f.Name] = v
		}
	}
	for name, v := range a.defaults {
		if _, ok := rec[name]; !ok {
			rec[name] = v
		}
	}

	if err := a.checkUnique(ctx, rec, ""); err != nil {
		return nil, err
	}

	doc := a.encode(rec)
	if err := a.store.Insert(ctx, a.layout.Collection, doc); err != nil {
		return nil, fmt.Errorf("insert %s: %w", a.layout.Source.Name, err)
	}
	return a.decode(doc), nil
}

// Get returns the record with the given identifier.
func (a *Accessor) Get(ctx context.Context, id string) (Record, error) {
	doc, err := a.store.FindOne(ctx, a.layout.Collection, storage.Where(storage.Eq(a.layout.IDField, id)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, a.notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", a.layout.Source.Name, err)
	}
	return a.decode(doc), nil
}

// Exists reports whether a record with the given identifier exists.
func (a *Accessor) Exists(ctx context.Context, id string) (bool, error) {
	n, err := a.store.Count(ctx, a.layout.Collection, storage.Where(storage.Eq(a.layout.IDField, id)))
	if err != nil {
		return false, fmt.Errorf("count %s: %w", a.layout.Source.Name, err)
	}
	return n > 0, nil
}

// MissingIDs returns the identifiers in ids that have no record, in input
// order.
func (a *Accessor) MissingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	docs, err := a.store.Find(ctx, a.layout.Collection, storage.Query{
		Filter: storage.Where(storage.Condition{Field: a.layout.IDField, Op: storage.OpIn, Value: values}),
	})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", a.layout.Source.Name, err)
	}

	found := make(map[string]bool, len(docs))
	for _, d := range docs {
		if id, ok := d[a.layout.IDField].(string); ok {
			found[id] = true
		}
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ListOptions configures List.
type ListOptions struct {
	Filter storage.Filter

	// Sort names a layout field; unknown fields fall back to createdAt.
	Sort string
	Desc bool

	Skip  int
	Limit int
}

// List returns one page of matching records and the total match count.
func (a *Accessor) List(ctx context.Context, opts ListOptions) ([]Record, int64, error) {
	filter := a.encodeFilter(opts.Filter)

	total, err := a.store.Count(ctx, a.layout.Collection, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", a.layout.Source.Name, err)
	}

	sortField := opts.Sort
	if _, ok := a.layout.Field(sortField); !ok {
		sortField = convention.CreatedAt
	}

	docs, err := a.store.Find(ctx, a.layout.Collection, storage.Query{
		Filter: filter,
		Sort:   sortField,
		Desc:   opts.Desc,
		Skip:   opts.Skip,
		Limit:  opts.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("find %s: %w", a.layout.Source.Name, err)
	}

	records := make([]Record, len(docs))
	for i, d := range docs {
		records[i] = a.decode(d)
	}
	return records, total, nil
}

// Update merges values into the record with the given identifier and
// returns the result. Only author fields are written; updatedAt is
// refreshed.
func (a *Accessor) Update(ctx context.Context, id string, values map[string]any) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := Record{}
	for _, f := range a.layout.Fields {
		if f.Implicit {
			continue
		}
		if v, ok := values[f.Name]; ok {
			set[f.Name] = v
		}
	}

	if err := a.checkUnique(ctx, set, id); err != nil {
		return nil, err
	}
	set[convention.UpdatedAt] = a.clock.Now().UTC()

	n, err := a.store.Update(ctx, a.layout.Collection, storage.Where(storage.Eq(a.layout.IDField, id)), a.encode(set))
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", a.layout.Source.Name, err)
	}
	if n == 0 {
		return nil, a.notFound(id)
	}
	return a.Get(ctx, id)
}

// Delete removes the record with the given identifier.
func (a *Accessor) Delete(ctx context.Context, id string) error {
	n, err := a.store.Delete(ctx, a.layout.Collection, storage.Where(storage.Eq(a.layout.IDField, id)))
	if err != nil {
		return fmt.Errorf("delete %s: %w", a.layout.Source.Name, err)
	}
	if n == 0 {
		return a.notFound(id)
	}
	return nil
}

// Purge removes every record of the schema.
func (a *Accessor) Purge(ctx context.Context) (int64, error) {
	n, err := a.store.Drop(ctx, a.layout.Collection)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", a.layout.Source.Name, err)
	}
	return n, nil
}

// checkUnique fails with a conflict when a unique field in rec already holds
// the same value in another record. excludeID skips the record being
// updated.
func (a *Accessor) checkUnique(ctx context.Context, rec Record, excludeID string) error {
	for _, f := range a.layout.UniqueFields() {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}

		conds := []storage.Condition{storage.Eq(f.Name, encodeValue(v))}
		if excludeID != "" {
			conds = append(conds, storage.Condition{Field: a.layout.IDField, Op: storage.OpNe, Value: excludeID})
		}

		n, err := a.store.Count(ctx, a.layout.Collection, storage.Where(conds...))
		if err != nil {
			return fmt.Errorf("check unique %s.%s: %w", a.layout.Source.Name, f.Name, err)
		}
		if n > 0 {
			e := errs.Conflict("%s with %s %v already exists", a.layout.Source.Name, f.Name, v)
			e.Field = f.Name
			return e
		}
	}
	return nil
}

func (a *Accessor) notFound(id string) error {
	e := errs.NotFound("%s with id %q not found", a.layout.Source.Name, id)
	e.Field = a.layout.IDField
	return e
}

// encode converts a typed record into its stored form.
func (a *Accessor) encode(rec Record) storage.Document {
	doc := make(storage.Document, len(rec))
	for k, v := range rec {
		doc[k] = encodeValue(v)
	}
	return doc
}

// decode converts a stored document into a typed record. Date fields are
// parsed back into time values.
func (a *Accessor) decode(doc storage.Document) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		rec[k] = v
	}
	for _, f := range a.layout.Fields {
		if f.Type != schema.FieldTypeDate {
			continue
		}
		s, ok := rec[f.Name].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(TimeLayout, s); err == nil {
			rec[f.Name] = t
		}
	}
	return rec
}

func (a *Accessor) encodeFilter(f storage.Filter) storage.Filter {
	return storage.Filter{All: encodeConditions(f.All), Any: encodeConditions(f.Any)}
}

func encodeConditions(conds []storage.Condition) []storage.Condition {
	if conds == nil {
		return nil
	}
	out := make([]storage.Condition, len(conds))
	for i, c := range conds {
		c.Value = encodeValue(c.Value)
		out[i] = c
	}
	return out
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(TimeLayout)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	}
	return v
}
