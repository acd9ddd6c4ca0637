package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/convention"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/reference"
	"github.com/artpar/masterdata/core/registry"
	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/core/storage"
	"github.com/artpar/masterdata/core/validation"
)

// RecordService is the generic record engine: CRUD over the records of any
// cached schema.
type RecordService struct {
	cache   *registry.Registry
	refs    *reference.Validator
	metrics *metrics.Collector
	logger  zerolog.Logger

	defaultLimit int
	maxLimit     int
}

// RecordServiceConfig contains configuration for RecordService.
type RecordServiceConfig struct {
	DefaultLimit int // Page size when none is requested
	MaxLimit     int // Upper bound on the page size
}

// NewRecordService creates a new record service. m may be nil.
func NewRecordService(cache *registry.Registry, m *metrics.Collector, logger zerolog.Logger, cfg RecordServiceConfig) *RecordService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	return &RecordService{
		cache:        cache,
		refs:         reference.New(cache),
		metrics:      m,
		logger:       logger.With().Str("service", "record").Logger(),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
}

// ListParams selects one page of records.
type ListParams struct {
	Page  int
	Limit int

	// Sort names the field to order by; Order is "asc" or "desc".
	Sort  string
	Order string

	// Search matches a case-insensitive substring of any string field.
	Search string

	// Filters maps a field to a value (exact match) or to an operator map
	// such as {"$gte": 10, "$lt": 20}.
	Filters map[string]any
}

// Page is one page of records.
type Page struct {
	Data       []accessor.Record `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"totalPages"`
}

// Create validates payload against the schema and stores a new record.
// A caller-supplied identifier is discarded.
func (s *RecordService) Create(ctx context.Context, schemaName string, payload map[string]any) (rec accessor.Record, err error) {
	start := time.Now()
	label := metrics.UnknownSchema
	defer func() { s.metrics.RecordOp(label, "create", start, err) }()

	entry, err := s.cache.Get(schemaName)
	if err != nil {
		return nil, err
	}
	label = entry.Schema.Name

	payload = withoutID(payload, entry.Accessor.IDField())

	values, err := validation.CoercePayload(entry.Schema.Fields, payload, validation.Create)
	if err != nil {
		return nil, err
	}
	if err := s.refs.Validate(ctx, entry.Schema.Name, values, false); err != nil {
		return nil, err
	}

	return entry.Accessor.Create(ctx, values)
}

// List returns one page of records matching params.
func (s *RecordService) List(ctx context.Context, schemaName string, params ListParams) (page Page, err error) {
	start := time.Now()
	label := metrics.UnknownSchema
	defer func() { s.metrics.RecordOp(label, "list", start, err) }()

	entry, err := s.cache.Get(schemaName)
	if err != nil {
		return Page{}, err
	}
	label = entry.Schema.Name
	layout := entry.Accessor.Layout()

	if params.Page < 1 {
		params.Page = 1
	}
	switch {
	case params.Limit <= 0:
		params.Limit = s.defaultLimit
	case params.Limit > s.maxLimit:
		params.Limit = s.maxLimit
	}
	if params.Sort == "" {
		params.Sort = convention.CreatedAt
	}

	var desc bool
	switch strings.ToLower(params.Order) {
	case "", "desc":
		desc = true
	case "asc":
	default:
		return Page{}, errs.InvalidField("order", "enum", params.Order, "order must be asc or desc")
	}

	filter, err := buildFilter(layout, params.Filters)
	if err != nil {
		return Page{}, err
	}

	page = Page{Data: []accessor.Record{}, Page: params.Page, Limit: params.Limit}

	if search := strings.TrimSpace(params.Search); search != "" {
		fields := layout.StringFields()
		if len(fields) == 0 {
			// Nothing to search in means nothing matches.
			return page, nil
		}
		for _, name := range fields {
			filter.Any = append(filter.Any, storage.Condition{Field: name, Op: storage.OpContains, Value: search})
		}
	}

	records, total, err := entry.Accessor.List(ctx, accessor.ListOptions{
		Filter: filter,
		Sort:   params.Sort,
		Desc:   desc,
		Skip:   (params.Page - 1) * params.Limit,
		Limit:  params.Limit,
	})
	if err != nil {
		return Page{}, errs.Internal(err, "list %s", entry.Schema.Name)
	}

	if records != nil {
		page.Data = records
	}
	page.Total = total
	page.TotalPages = int((total + int64(params.Limit) - 1) / int64(params.Limit))
	return page, nil
}

// Get returns one record by identifier.
func (s *RecordService) Get(ctx context.Context, schemaName, id string) (rec accessor.Record, err error) {
	start := time.Now()
	label := metrics.UnknownSchema
	defer func() { s.metrics.RecordOp(label, "get", start, err) }()

	entry, err := s.cache.Get(schemaName)
	if err != nil {
		return nil, err
	}
	label = entry.Schema.Name
	return entry.Accessor.Get(ctx, id)
}

// Update merges the supplied fields into an existing record. Only fields
// present in payload are coerced and reference-checked.
func (s *RecordService) Update(ctx context.Context, schemaName, id string, payload map[string]any) (rec accessor.Record, err error) {
	start := time.Now()
	label := metrics.UnknownSchema
	defer func() { s.metrics.RecordOp(label, "update", start, err) }()

	entry, err := s.cache.Get(schemaName)
	if err != nil {
		return nil, err
	}
	label = entry.Schema.Name

	ok, err := entry.Accessor.Exists(ctx, id)
	if err != nil {
		return nil, errs.Internal(err, "look up %s %q", entry.Schema.Name, id)
	}
	if !ok {
		e := errs.NotFound("%s with id %q not found", entry.Schema.Name, id)
		e.Field = entry.Accessor.IDField()
		return nil, e
	}

	payload = withoutID(payload, entry.Accessor.IDField())

	values, err := validation.CoercePayload(entry.Schema.Fields, payload, validation.Partial)
	if err != nil {
		return nil, err
	}
	if err := s.refs.Validate(ctx, entry.Schema.Name, values, true); err != nil {
		return nil, err
	}

	return entry.Accessor.Update(ctx, id, values)
}

// Delete removes one record by identifier.
func (s *RecordService) Delete(ctx context.Context, schemaName, id string) (err error) {
	start := time.Now()
	label := metrics.UnknownSchema
	defer func() { s.metrics.RecordOp(label, "delete", start, err) }()

	entry, err := s.cache.Get(schemaName)
	if err != nil {
		return err
	}
	label = entry.Schema.Name
	return entry.Accessor.Delete(ctx, id)
}

// withoutID returns payload minus the generated identifier field.
func withoutID(payload map[string]any, idField string) map[string]any {
	if _, ok := payload[idField]; !ok {
		return payload
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != idField {
			out[k] = v
		}
	}
	return out
}

var filterOps = map[string]storage.Op{
	"$eq":  storage.OpEq,
	"$ne":  storage.OpNe,
	"$gt":  storage.OpGt,
	"$gte": storage.OpGte,
	"$lt":  storage.OpLt,
	"$lte": storage.OpLte,
	"$in":  storage.OpIn,
	"$nin": storage.OpNin,
}

// buildFilter translates list filters into storage conditions. Values are
// coerced to the type of the field they filter.
func buildFilter(layout convention.Derived, filters map[string]any) (storage.Filter, error) {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var f storage.Filter
	for _, name := range names {
		field, ok := layout.Field(name)
		if !ok {
			return storage.Filter{}, errs.InvalidField(name, "filter", nil, "unknown field "+name)
		}

		raw := filters[name]
		ops, isOps := operatorMap(raw)
		if !isOps {
			v, err := filterValue(field, raw)
			if err != nil {
				return storage.Filter{}, err
			}
			f.All = append(f.All, storage.Eq(name, v))
			continue
		}

		keys := make([]string, 0, len(ops))
		for k := range ops {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			op, ok := filterOps[key]
			if !ok {
				return storage.Filter{}, errs.InvalidField(name, "filter", key, "unsupported operator "+key)
			}

			var v any
			var err error
			if op == storage.OpIn || op == storage.OpNin {
				v, err = filterList(field, ops[key])
			} else {
				v, err = filterValue(field, ops[key])
			}
			if err != nil {
				return storage.Filter{}, err
			}
			f.All = append(f.All, storage.Condition{Field: name, Op: op, Value: v})
		}
	}
	return f, nil
}

// operatorMap reports whether raw is a map whose keys are all operators.
func operatorMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func filterValue(field convention.DerivedField, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeMaster:
		return raw, nil
	}
	v, err := validation.Coerce(schema.Field{Name: field.Name, Type: field.Type}, raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func filterList(field convention.DerivedField, raw any) ([]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, errs.InvalidField(field.Name, "filter", raw, fmt.Sprintf("operator on %s needs a list", field.Name))
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := filterValue(field, item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
