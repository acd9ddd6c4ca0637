// Package events provides the publish/subscribe bus that carries schema
// lifecycle events.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/core/schema"
)

// Schema lifecycle event names.
const (
	SchemaCreated = "schema.created"
	SchemaUpdated = "schema.updated"
	SchemaDeleted = "schema.deleted"
)

// Event represents a published event.
type Event struct {
	// Name is the event name, e.g. "schema.created".
	Name string

	// SchemaName is the schema the event is about.
	SchemaName string

	// Schema is the definition after the change. Nil for deletions.
	Schema *schema.Schema

	// Meta carries details of the change, such as the purge count of a
	// forced delete.
	Meta map[string]any
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event pattern:
//   - "schema.created" - exact match
//   - "schema.*" - every event in the schema namespace
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish calls every matching handler in registration order, exact
// subscriptions first. Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Str("schema", event.SchemaName).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Str("schema", event.SchemaName).
				Msg("event handler error")
		}
	}
}

func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)
	if ns, _, ok := strings.Cut(name, "."); ok {
		matched = append(matched, b.handlers[ns+".*"]...)
	}
	matched = append(matched, b.handlers["*"]...)
	return matched
}

// LogHandler returns a handler that logs lifecycle events at info level.
func LogHandler(logger zerolog.Logger) Handler {
	return func(_ context.Context, event Event) error {
		e := logger.Info().Str("event", event.Name).Str("schema", event.SchemaName)
		if event.Schema != nil {
			e = e.Int("fields", len(event.Schema.Fields))
		}
		for k, v := range event.Meta {
			e = e.Interface(k, v)
		}
		e.Msg("schema lifecycle")
		return nil
	}
}
