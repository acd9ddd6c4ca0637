// Package metrics provides Prometheus metrics collection for the schema engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/masterdata/core/errs"
)

// Collector holds all Prometheus metrics. A nil *Collector records nothing.
type Collector struct {
	// Schema registry metrics
	SchemaOperations *prometheus.CounterVec

	// Record engine metrics
	RecordOperations *prometheus.CounterVec
	RecordDuration   *prometheus.HistogramVec

	// Accessor cache metrics
	CacheEntries prometheus.Gauge
	CacheSyncs   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		SchemaOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "masterdata",
				Name:      "schema_operations_total",
				Help:      "Schema registry operations by outcome",
			},
			[]string{"op", "result"},
		),

		RecordOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "masterdata",
				Name:      "record_operations_total",
				Help:      "Record operations by schema and outcome",
			},
			[]string{"schema", "op", "result"},
		),
		RecordDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "masterdata",
				Name:      "record_operation_duration_seconds",
				Help:      "Record operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),

		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "masterdata",
				Name:      "cache_entries",
				Help:      "Number of schemas in the accessor cache",
			},
		),
		CacheSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "masterdata",
				Name:      "cache_syncs_total",
				Help:      "Full accessor cache rebuilds by outcome",
			},
			[]string{"result"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "masterdata",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "masterdata",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// Result returns the outcome label for err: "ok" or the error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errs.KindOf(err))
}

// SchemaOp records one schema registry operation.
func (c *Collector) SchemaOp(op string, err error) {
	if c == nil {
		return
	}
	c.SchemaOperations.WithLabelValues(op, Result(err)).Inc()
}

// UnknownSchema is the schema label for operations on names that are not
// in the cache.
const UnknownSchema = "unknown"

// RecordOp records one record operation and its duration. schemaName must
// be a resolved schema name or UnknownSchema.
func (c *Collector) RecordOp(schemaName, op string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.RecordOperations.WithLabelValues(schemaName, op, Result(err)).Inc()
	c.RecordDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CacheSize sets the number of cached schemas.
func (c *Collector) CacheSize(n int) {
	if c == nil {
		return
	}
	c.CacheEntries.Set(float64(n))
}

// CacheSync records one full cache rebuild.
func (c *Collector) CacheSync(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.CacheSyncs.WithLabelValues(result).Inc()
}

// HTTPRequest records one served HTTP request.
func (c *Collector) HTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
