// Package metrics exposes Prometheus collectors for renders, document
// fetches and the HTTP front end.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render results
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultCancelled = "cancelled"
)

// Metrics bundles every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	renders          *prometheus.CounterVec
	renderDuration   prometheus.Histogram
	fetches          *prometheus.CounterVec
	cacheWrites      *prometheus.CounterVec
	storeInvalidated prometheus.Counter
	requestLatencies *prometheus.HistogramVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxrender_renders_total",
			Help: "Renders by result.",
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boxrender_render_duration_seconds",
			Help:    "Wall time of a render pass.",
			Buckets: prometheus.ExponentialBuckets(.001, 2, 15),
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxrender_fetch_total",
			Help: "Document fetches by source kind and outcome (fresh, cached, empty).",
		}, []string{"kind", "outcome"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxrender_cache_writes_total",
			Help: "Cache writes by result.",
		}, []string{"result"}),
		storeInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxrender_store_invalidations_total",
			Help: "Directory store listings dropped after a file change.",
		}),
		requestLatencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "boxrender_request_duration_seconds",
			Help: "Response latency distribution in seconds for each method and HTTP response code.",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.25, 1.5, 2, 3,
				4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		m.renders,
		m.renderDuration,
		m.fetches,
		m.cacheWrites,
		m.storeInvalidated,
		m.requestLatencies,
	)
	return m
}

// ObserveRender records one render pass
func (m *Metrics) ObserveRender(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(result).Inc()
	m.renderDuration.Observe(d.Seconds())
}

// ObserveFetch records the outcome of one document fetch
func (m *Metrics) ObserveFetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(kind, outcome).Inc()
}

// ObserveCacheWrite records a cache write attempt
func (m *Metrics) ObserveCacheWrite(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

// ObserveInvalidation records a dropped store listing
func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.storeInvalidated.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WithLatencyTracking tracks the number of seconds it took the wrapped handler
// to complete.
func (m *Metrics) WithLatencyTracking(delegate http.Handler) http.Handler {
	if m == nil {
		return delegate
	}
	return promhttp.InstrumentHandlerDuration(m.requestLatencies, delegate)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RenderCount returns the counter for one render result. Used by tests
// through prometheus/testutil.
func (m *Metrics) RenderCount(result string) prometheus.Counter {
	return m.renders.WithLabelValues(result)
}

// FetchCount returns the counter for one fetch outcome
func (m *Metrics) FetchCount(kind, outcome string) prometheus.Counter {
	return m.fetches.WithLabelValues(kind, outcome)
}
