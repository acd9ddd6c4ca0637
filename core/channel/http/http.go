// Package http exposes the schema registry and the generic record engine as
// a REST API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/openapi"
	"github.com/artpar/masterdata/core/schema"
)

// Schemas is the schema registry surface served over HTTP.
type Schemas interface {
	Create(ctx context.Context, def schema.Schema) (schema.Schema, error)
	Update(ctx context.Context, name string, def schema.Schema) (schema.Schema, error)
	Get(ctx context.Context, name string) (schema.Schema, error)
	List(ctx context.Context) ([]schema.Schema, error)
	ListByGroup(ctx context.Context, groupID string) ([]schema.Schema, error)
	Delete(ctx context.Context, name string, force bool) error
}

// Records is the record engine surface served over HTTP.
type Records interface {
	Create(ctx context.Context, schemaName string, payload map[string]any) (accessor.Record, error)
	List(ctx context.Context, schemaName string, params app.ListParams) (app.Page, error)
	Get(ctx context.Context, schemaName, id string) (accessor.Record, error)
	Update(ctx context.Context, schemaName, id string, payload map[string]any) (accessor.Record, error)
	Delete(ctx context.Context, schemaName, id string) error
}

// Config contains optional channel settings.
type Config struct {
	// Metrics records per-route request counts. Nil disables it.
	Metrics *metrics.Collector

	// MetricsHandler serves MetricsPath. Nil leaves the route unregistered.
	MetricsHandler http.Handler
	MetricsPath    string // default: /metrics

	// RequestTimeout bounds each request. Zero means 60s.
	RequestTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OpenAPI serves /openapi.json. Nil leaves the route unregistered.
	OpenAPI *openapi.Service
}

// Channel serves the REST API.
type Channel struct {
	router  chi.Router
	schemas Schemas
	records Records
	logger  zerolog.Logger
	addr    string
	readTO  time.Duration
	writeTO time.Duration
	server  *http.Server
}

// New creates the channel and registers every route.
func New(schemas Schemas, records Records, logger zerolog.Logger, addr string, cfg Config) *Channel {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	c := &Channel{
		router:  chi.NewRouter(),
		schemas: schemas,
		records: records,
		logger:  logger.With().Str("channel", "http").Logger(),
		addr:    addr,
		readTO:  cfg.ReadTimeout,
		writeTO: cfg.WriteTimeout,
	}

	r := c.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(c.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	}

	if cfg.OpenAPI != nil {
		r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			writeJSON(w, http.StatusOK, cfg.OpenAPI.Spec(scheme+"://"+r.Host))
		})
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))
	}

	r.Route("/schemas", func(r chi.Router) {
		r.Post("/", c.createSchema)
		r.Get("/", c.listSchemas)
		r.Get("/{name}", c.getSchema)
		r.Put("/{name}", c.updateSchema)
		r.Delete("/{name}", c.deleteSchema)
	})
	r.Get("/groups/{groupId}/schemas", c.listSchemasByGroup)

	r.Route("/records/{schema}", func(r chi.Router) {
		r.Post("/", c.createRecord)
		r.Get("/", c.listRecords)
		r.Get("/{id}", c.getRecord)
		r.Put("/{id}", c.updateRecord)
		r.Patch("/{id}", c.updateRecord)
		r.Delete("/{id}", c.deleteRecord)
	})

	return c
}

// PrometheusHandler returns the default /metrics handler.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "http"
}

// Handler returns the HTTP handler.
func (c *Channel) Handler() http.Handler {
	return c.router
}

// Start starts the HTTP server in the background. It does nothing when no
// address is configured.
func (c *Channel) Start(ctx context.Context) error {
	if c.addr == "" {
		return nil
	}

	c.server = &http.Server{
		Addr:              c.addr,
		Handler:           c.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       c.readTO,
		WriteTimeout:      c.writeTO,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Str("addr", c.addr).Msg("http server failed")
		}
	}()

	c.logger.Info().Str("addr", c.addr).Msg("http server started")
	return nil
}

// Stop gracefully shuts the server down.
func (c *Channel) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string            `json:"error"`
	Kind   errs.Kind         `json:"kind"`
	Field  string            `json:"field,omitempty"`
	Fields []errs.FieldError `json:"fields,omitempty"`
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation, errs.KindReferentialIntegrity:
		return http.StatusUnprocessableEntity
	case errs.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (c *Channel) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := errorBody{Error: err.Error(), Kind: errs.KindOf(err)}

	var e *errs.Error
	if errors.As(err, &e) {
		body.Field = e.Field
		body.Fields = e.Fields
	}

	if status == http.StatusInternalServerError {
		c.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		body.Error = "internal error"
	}

	writeJSON(w, status, body)
}

// badRequest reports a body that is not valid JSON.
func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error(), Kind: errs.KindValidation})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// NewLoggingMiddleware logs each request at debug level.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware counts requests per route pattern, so that record
// ids do not become label values.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = strings.TrimSuffix(p, "/")
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPRequest(r.Method, route, status, time.Since(start))
		})
	}
}
