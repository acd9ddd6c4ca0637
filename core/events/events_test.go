package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/core/schema"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPublishExactMatch(t *testing.T) {
	bus := NewBus(testLogger())

	var got Event
	bus.Subscribe(SchemaCreated, func(_ context.Context, e Event) error {
		got = e
		return nil
	})

	s := schema.Schema{Name: "city"}
	bus.Publish(context.Background(), Event{Name: SchemaCreated, SchemaName: "city", Schema: &s})

	if got.SchemaName != "city" || got.Schema == nil || got.Schema.Name != "city" {
		t.Errorf("handler received %+v", got)
	}
}

func TestPublishNoMatch(t *testing.T) {
	bus := NewBus(testLogger())

	called := false
	bus.Subscribe(SchemaDeleted, func(context.Context, Event) error {
		called = true
		return nil
	})
	bus.Publish(context.Background(), Event{Name: SchemaCreated})

	if called {
		t.Error("handler for another event should not be called")
	}
}

func TestPublishWildcards(t *testing.T) {
	bus := NewBus(testLogger())

	var order []string
	record := func(tag string) Handler {
		return func(context.Context, Event) error {
			order = append(order, tag)
			return nil
		}
	}
	bus.Subscribe("*", record("all"))
	bus.Subscribe("schema.*", record("ns"))
	bus.Subscribe(SchemaUpdated, record("exact"))
	bus.Subscribe("record.*", record("other"))

	bus.Publish(context.Background(), Event{Name: SchemaUpdated})

	want := []string{"exact", "ns", "all"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("handler order = %v, want %v", order, want)
	}
}

func TestPublishHandlerErrorContinues(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(zerolog.New(&buf))

	second := false
	bus.Subscribe(SchemaDeleted, func(context.Context, Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(SchemaDeleted, func(context.Context, Event) error {
		second = true
		return nil
	})

	bus.Publish(context.Background(), Event{Name: SchemaDeleted, SchemaName: "city"})

	if !second {
		t.Error("delivery should continue after a handler error")
	}
	if !strings.Contains(buf.String(), "event handler error") {
		t.Errorf("error not logged: %s", buf.String())
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LogHandler(zerolog.New(&buf))

	s := schema.Schema{Name: "city", Fields: []schema.Field{{Name: "cityName", Type: schema.FieldTypeString}}}
	if err := h(context.Background(), Event{Name: SchemaCreated, SchemaName: "city", Schema: &s, Meta: map[string]any{"force": true}}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{`"event":"schema.created"`, `"schema":"city"`, `"fields":1`, `"force":true`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus(testLogger())

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(SchemaCreated, func(context.Context, Event) error {
				mu.Lock()
				count++
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Name: SchemaCreated})
		}()
	}
	wg.Wait()

	bus.Publish(context.Background(), Event{Name: SchemaCreated})
	mu.Lock()
	defer mu.Unlock()
	if count < 10 {
		t.Errorf("final publish reached %d handlers, want at least 10", count)
	}
}
