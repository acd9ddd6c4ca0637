// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/events"
	"github.com/artpar/masterdata/core/registry"
	"github.com/artpar/masterdata/core/schema"
	"github.com/artpar/masterdata/core/validation"
	"github.com/artpar/masterdata/ports"
)

// SchemaService is the schema registry. It persists definitions, keeps the
// accessor cache in step with them and announces lifecycle events.
type SchemaService struct {
	schemas ports.SchemaStore
	groups  ports.GroupStore
	builder *accessor.Builder
	cache   *registry.Registry
	bus     *events.Bus
	metrics *metrics.Collector
	logger  zerolog.Logger

	// mu serializes mutations and full resyncs so a resync never installs
	// a snapshot taken before a concurrent create or delete.
	mu sync.Mutex

	syncInterval time.Duration
	trigger      chan struct{}
	stopSync     chan struct{}
	stopOnce     sync.Once
}

// SchemaServiceConfig contains configuration for SchemaService.
type SchemaServiceConfig struct {
	SyncInterval time.Duration // How often to rebuild the cache from storage
}

// NewSchemaService creates a new schema service. bus and m may be nil.
func NewSchemaService(
	schemas ports.SchemaStore,
	groups ports.GroupStore,
	builder *accessor.Builder,
	cache *registry.Registry,
	bus *events.Bus,
	m *metrics.Collector,
	logger zerolog.Logger,
	cfg SchemaServiceConfig,
) *SchemaService {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 30 * time.Second
	}

	return &SchemaService{
		schemas:      schemas,
		groups:       groups,
		builder:      builder,
		cache:        cache,
		bus:          bus,
		metrics:      m,
		logger:       logger.With().Str("service", "schema").Logger(),
		syncInterval: cfg.SyncInterval,
		trigger:      make(chan struct{}, 1),
		stopSync:     make(chan struct{}),
	}
}

// Create registers a new schema. Master fields are renamed to
// "<masterType>Id" before validation and the renamed definition is what
// gets persisted and returned.
func (s *SchemaService) Create(ctx context.Context, def schema.Schema) (out schema.Schema, err error) {
	defer func() { s.metrics.SchemaOp("create", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	def = schema.NormalizeMasterFields(def)
	def.Name = strings.TrimSpace(def.Name)

	if _, err := s.schemas.Get(ctx, def.Name); err == nil {
		return schema.Schema{}, conflictField("name", "schema %q already exists", def.Name)
	} else if !errors.Is(err, ports.ErrNotFound) {
		return schema.Schema{}, errs.Internal(err, "look up schema %q", def.Name)
	}

	entry, err := s.prepare(ctx, def)
	if err != nil {
		return schema.Schema{}, err
	}

	if err := s.schemas.Create(ctx, def); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return schema.Schema{}, conflictField("name", "schema %q already exists", def.Name)
		}
		return schema.Schema{}, errs.Internal(err, "persist schema %q", def.Name)
	}

	s.install(entry)
	s.publish(ctx, events.SchemaCreated, def.Name, &def)
	return def, nil
}

// Update replaces the definition of an existing schema. The field list is
// replaced wholesale and the accessor rebuilt; stored records keep whatever
// fields they already have.
func (s *SchemaService) Update(ctx context.Context, name string, def schema.Schema) (out schema.Schema, err error) {
	defer func() { s.metrics.SchemaOp("update", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.schemas.Get(ctx, name)
	if errors.Is(err, ports.ErrNotFound) {
		return schema.Schema{}, errs.NotFound("schema %q not found", name)
	}
	if err != nil {
		return schema.Schema{}, errs.Internal(err, "look up schema %q", name)
	}

	if def.Name != "" && schema.Key(def.Name) != current.Key() {
		return schema.Schema{}, errs.InvalidField("name", "immutable", def.Name, "schema name cannot be changed")
	}
	def.Name = current.Name
	def = schema.NormalizeMasterFields(def)

	entry, err := s.prepare(ctx, def)
	if err != nil {
		return schema.Schema{}, err
	}

	if err := s.schemas.Update(ctx, def); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return schema.Schema{}, errs.NotFound("schema %q not found", name)
		}
		return schema.Schema{}, errs.Internal(err, "persist schema %q", name)
	}

	s.install(entry)
	s.publish(ctx, events.SchemaUpdated, def.Name, &def)
	return def, nil
}

// Get returns the persisted definition of the named schema.
func (s *SchemaService) Get(ctx context.Context, name string) (schema.Schema, error) {
	def, err := s.schemas.Get(ctx, name)
	if errors.Is(err, ports.ErrNotFound) {
		return schema.Schema{}, errs.NotFound("schema %q not found", name)
	}
	if err != nil {
		return schema.Schema{}, errs.Internal(err, "get schema %q", name)
	}
	return def, nil
}

// List returns every persisted schema.
func (s *SchemaService) List(ctx context.Context) ([]schema.Schema, error) {
	defs, err := s.schemas.List(ctx)
	if err != nil {
		return nil, errs.Internal(err, "list schemas")
	}
	return defs, nil
}

// ListByGroup returns the schemas tagged with groupID. The group must exist.
func (s *SchemaService) ListByGroup(ctx context.Context, groupID string) ([]schema.Schema, error) {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, errs.NotFound("group %q not found", groupID)
		}
		return nil, errs.Internal(err, "get group %q", groupID)
	}

	defs, err := s.schemas.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, errs.Internal(err, "list schemas of group %q", groupID)
	}
	return defs, nil
}

// Delete removes a schema. It is refused while other schemas hold master
// fields pointing at it, unless force is set. A forced delete also purges
// every stored record of the schema.
func (s *SchemaService) Delete(ctx context.Context, name string, force bool) (err error) {
	defer func() { s.metrics.SchemaOp("delete", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.schemas.Get(ctx, name)
	if errors.Is(err, ports.ErrNotFound) {
		return errs.NotFound("schema %q not found", name)
	}
	if err != nil {
		return errs.Internal(err, "look up schema %q", name)
	}

	referencing, err := s.referencing(ctx, def)
	if err != nil {
		return err
	}
	if len(referencing) > 0 && !force {
		e := errs.Conflict("schema %q is referenced by %s", def.Name, strings.Join(referencing, ", "))
		e.Field = "name"
		return e
	}

	// A failed purge must leave the schema registered, so records go before the
	// metadata.
	var meta map[string]any
	if force {
		acc, err := s.purgeAccessor(def)
		if err != nil {
			return err
		}
		n, err := acc.Purge(ctx)
		if err != nil {
			return errs.Internal(err, "purge records of %q", def.Name)
		}
		s.logger.Info().Str("schema", def.Name).Int64("records", n).Msg("purged records")
		meta = map[string]any{"force": true, "purged": n}
	}

	if err := s.schemas.Delete(ctx, def.Name); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return errs.Internal(err, "delete schema %q", def.Name)
	}
	s.cache.Remove(def.Name)
	s.metrics.CacheSize(s.cache.Len())

	s.publishMeta(ctx, events.SchemaDeleted, def.Name, nil, meta)
	return nil
}

// Sync rebuilds the accessor cache from persisted metadata and swaps it in
// atomically. A schema whose accessor cannot be built is logged and left
// out of the cache.
func (s *SchemaService) Sync(ctx context.Context) (err error) {
	defer func() { s.metrics.CacheSync(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.schemas.List(ctx)
	if err != nil {
		return errs.Internal(err, "load schemas")
	}

	entries := make([]registry.Entry, 0, len(defs))
	for _, def := range defs {
		acc, err := s.builder.Build(def)
		if err != nil {
			s.logger.Error().Err(err).Str("schema", def.Name).Msg("failed to build accessor")
			continue
		}
		entries = append(entries, registry.Entry{Schema: def, Accessor: acc})
	}

	s.cache.ReplaceAll(entries)
	s.metrics.CacheSize(len(entries))
	s.logger.Debug().Int("schemas", len(entries)).Msg("cache synced")
	return nil
}

// Start loads the cache and begins the background resync loop.
func (s *SchemaService) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	go s.syncLoop()

	return nil
}

// Stop stops the background resync loop.
func (s *SchemaService) Stop() {
	s.stopOnce.Do(func() { close(s.stopSync) })
}

// Trigger requests an out-of-band resync. Requests made while one is
// pending are coalesced.
func (s *SchemaService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *SchemaService) syncLoop() {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSync:
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.Sync(ctx); err != nil {
			s.logger.Error().Err(err).Msg("failed to sync schemas")
		}
		cancel()
	}
}

// prepare runs the validation pipeline shared by create and update and
// builds the accessor that will be installed on success.
func (s *SchemaService) prepare(ctx context.Context, def schema.Schema) (registry.Entry, error) {
	if err := schema.Validate(def); err != nil {
		return registry.Entry{}, err
	}

	var problems []errs.FieldError
	for _, f := range def.Fields {
		if err := validation.ValidateDefault(f); err != nil {
			problems = append(problems, errs.FieldsOf(err)...)
		}
		if f.IsMaster() && !s.cache.Has(f.MasterType) {
			problems = append(problems, errs.FieldError{
				Field:   f.Name,
				Rule:    "masterType",
				Value:   f.MasterType,
				Message: "referenced schema " + f.MasterType + " does not exist",
			})
		}
	}
	if err := errs.Invalid("invalid schema definition", problems); err != nil {
		return registry.Entry{}, err
	}

	if def.GroupID != "" {
		if _, err := s.groups.Get(ctx, def.GroupID); err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return registry.Entry{}, errs.InvalidField("groupId", "reference", def.GroupID, "group does not exist")
			}
			return registry.Entry{}, errs.Internal(err, "get group %q", def.GroupID)
		}
	}

	acc, err := s.builder.Build(def)
	if err != nil {
		return registry.Entry{}, err
	}
	return registry.Entry{Schema: def, Accessor: acc}, nil
}

// referencing returns the sorted names of other schemas with master fields
// targeting def.
func (s *SchemaService) referencing(ctx context.Context, def schema.Schema) ([]string, error) {
	all, err := s.schemas.List(ctx)
	if err != nil {
		return nil, errs.Internal(err, "list schemas")
	}

	var names []string
	for _, other := range all {
		if other.Key() == def.Key() {
			continue
		}
		if other.References(def.Name) {
			names = append(names, other.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *SchemaService) install(entry registry.Entry) {
	s.cache.Put(entry)
	s.metrics.CacheSize(s.cache.Len())
}

// purgeAccessor returns the accessor used to purge the records of def,
// building one when the schema is missing from the cache.
func (s *SchemaService) purgeAccessor(def schema.Schema) (*accessor.Accessor, error) {
	if entry, err := s.cache.Get(def.Name); err == nil {
		return entry.Accessor, nil
	}
	acc, err := s.builder.Build(def)
	if err != nil {
		return nil, errs.Internal(err, "build accessor for purge of %q", def.Name)
	}
	return acc, nil
}

func (s *SchemaService) publish(ctx context.Context, name, schemaName string, def *schema.Schema) {
	s.publishMeta(ctx, name, schemaName, def, nil)
}

func (s *SchemaService) publishMeta(ctx context.Context, name, schemaName string, def *schema.Schema, meta map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{Name: name, SchemaName: schemaName, Schema: def, Meta: meta})
}

func conflictField(field, format string, args ...any) error {
	e := errs.Conflict(format, args...)
	e.Field = field
	return e
}
