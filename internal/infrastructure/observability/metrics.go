package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the back office.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	importsTotal     *prometheus.CounterVec
	importedRows     *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cacheEvictions   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics creates a private registry so repeated construction in tests
// never collides with the global one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		importsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_imports_total",
				Help: "Ledger imports by variant and outcome.",
			},
			[]string{"variant", "outcome"},
		),
		importedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_import_rows_total",
				Help: "Imported rows by variant and result.",
			},
			[]string{"variant", "result"},
		),
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_provider_calls_total",
				Help: "Text generation calls by provider, operation and outcome.",
			},
			[]string{"provider", "operation", "outcome"},
		),
		providerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_provider_duration_seconds",
				Help:    "Duration of text generation calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		cacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_evictions_total",
				Help: "Total cache evictions by reason.",
			},
			[]string{"cache", "reason"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveImport implements service.ImportRecorder.
func (m *Metrics) ObserveImport(variant, outcome string, added, duplicates, skipped int) {
	m.importsTotal.WithLabelValues(variant, outcome).Inc()
	m.importedRows.WithLabelValues(variant, "added").Add(float64(added))
	m.importedRows.WithLabelValues(variant, "duplicate").Add(float64(duplicates))
	m.importedRows.WithLabelValues(variant, "skipped").Add(float64(skipped))
}

// ObserveProviderCall implements textgen.Recorder.
func (m *Metrics) ObserveProviderCall(provider, operation, outcome string, elapsed time.Duration) {
	m.providerCalls.WithLabelValues(provider, operation, outcome).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// CacheHit implements cache.Recorder.
func (m *Metrics) CacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss implements cache.Recorder.
func (m *Metrics) CacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// CacheEviction implements cache.Recorder.
func (m *Metrics) CacheEviction(cache, reason string) {
	m.cacheEvictions.WithLabelValues(cache, reason).Inc()
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// CounterValue reads the current value of a counter. Used by tests and the
// cache stats endpoint.
func CounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
