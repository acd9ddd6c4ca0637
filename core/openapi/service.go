package openapi

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/core/convention"
)

// Service serves specs for the current set of schemas, regenerating only
// when the set changes.
type Service struct {
	layouts func() []convention.Derived
	info    Info
	logger  zerolog.Logger

	cache atomic.Pointer[cachedSpec]
	mu    sync.Mutex // serializes regeneration
}

type cachedSpec struct {
	spec *Spec
	hash uint64
}

// ServiceConfig contains configuration for the OpenAPI service.
type ServiceConfig struct {
	// Layouts returns the current schema layouts in a stable order.
	Layouts func() []convention.Derived
	Info    Info
	Logger  zerolog.Logger
}

// NewService creates a new OpenAPI service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Info.Title == "" {
		cfg.Info = NewGenerator(nil).info
	}
	return &Service{
		layouts: cfg.Layouts,
		info:    cfg.Info,
		logger:  cfg.Logger.With().Str("service", "openapi").Logger(),
	}
}

// Spec returns the spec for the current schemas with baseURL as its only
// server. The returned value must not be modified.
func (s *Service) Spec(baseURL string) *Spec {
	layouts := s.layouts()
	hash := hashLayouts(layouts)

	cached := s.cache.Load()
	if cached == nil || cached.hash != hash {
		s.mu.Lock()
		if cached = s.cache.Load(); cached == nil || cached.hash != hash {
			g := NewGenerator(layouts)
			g.SetInfo(s.info)
			cached = &cachedSpec{spec: g.Generate(), hash: hash}
			s.cache.Store(cached)
			s.logger.Debug().Int("schemas", len(layouts)).Msg("openapi spec regenerated")
		}
		s.mu.Unlock()
	}

	if baseURL == "" {
		return cached.spec
	}
	out := *cached.spec
	out.Servers = []Server{{URL: baseURL}}
	return &out
}

// hashLayouts fingerprints the schema definitions behind layouts.
func hashLayouts(layouts []convention.Derived) uint64 {
	h := xxhash.New()
	for _, d := range layouts {
		b, err := json.Marshal(d.Source)
		if err != nil {
			h.WriteString(d.Source.Name + "!")
			continue
		}
		h.Write(b)
		h.WriteString("\x00")
	}
	return h.Sum64()
}
