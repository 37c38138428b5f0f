// Package metrics defines the Prometheus collectors for index builds,
// searches and context lookups, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build and lookup outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeCanceled = "canceled"
	OutcomeEmpty    = "empty"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	BuildsTotal       *prometheus.CounterVec
	BuildDuration     prometheus.Histogram
	RecordsIndexed    prometheus.Counter
	PagesSkipped      prometheus.Counter
	SearchQueries     *prometheus.CounterVec
	SearchLatency     prometheus.Histogram
	SearchHits        prometheus.Histogram
	ContextLookups    *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgsift_index_builds_total",
				Help: "Index builds by outcome (ok, canceled, error).",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgsift_index_build_duration_seconds",
				Help:    "Wall time of completed index builds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		RecordsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tgsift_records_indexed_total",
				Help: "Message records committed by index builds.",
			},
		),
		PagesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tgsift_pages_skipped_total",
				Help: "Export pages skipped because they could not be parsed.",
			},
		),
		SearchQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgsift_search_queries_total",
				Help: "Searches by outcome (ok, empty, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgsift_search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgsift_search_hits",
				Help:    "Hits returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		ContextLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgsift_context_lookups_total",
				Help: "Context window and source lookups by outcome (ok, not_found, error).",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgsift_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgsift_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BuildsTotal,
		m.BuildDuration,
		m.RecordsIndexed,
		m.PagesSkipped,
		m.SearchQueries,
		m.SearchLatency,
		m.SearchHits,
		m.ContextLookups,
		m.HTTPRequestsTotal,
		m.HTTPDuration,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBuild records a finished build. A nil receiver is a no-op so
// callers may run without metrics.
func (m *Metrics) ObserveBuild(outcome string, records, skipped int, took time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.BuildDuration.Observe(took.Seconds())
		m.RecordsIndexed.Add(float64(records))
		m.PagesSkipped.Add(float64(skipped))
	}
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(outcome string, hits int, took time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueries.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.SearchLatency.Observe(took.Seconds())
		m.SearchHits.Observe(float64(hits))
	}
}

// ObserveContext records one context or source lookup.
func (m *Metrics) ObserveContext(outcome string) {
	if m == nil {
		return
	}
	m.ContextLookups.WithLabelValues(outcome).Inc()
}
