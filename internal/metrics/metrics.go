// Package metrics defines the Prometheus collectors for the monitor and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	IngestRunsTotal      *prometheus.CounterVec
	PostsInsertedTotal   prometheus.Counter
	PostsDuplicateTotal  prometheus.Counter
	FirehosePostsMatched prometheus.Counter
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total pipeline runs by outcome (success, failure).",
			},
			[]string{"status"},
		),
		PostsInsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posts_inserted_total",
				Help: "Total posts committed to storage.",
			},
		),
		PostsDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posts_duplicate_total",
				Help: "Total posts rejected as content-hash duplicates.",
			},
		),
		FirehosePostsMatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "firehose_posts_matched_total",
				Help: "Total live firehose posts matching the topical keywords.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.IngestRunsTotal,
		m.PostsInsertedTotal,
		m.PostsDuplicateTotal,
		m.FirehosePostsMatched,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(success bool, inserted, duplicates int) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.IngestRunsTotal.WithLabelValues(status).Inc()
	m.PostsInsertedTotal.Add(float64(inserted))
	m.PostsDuplicateTotal.Add(float64(duplicates))
}

// Handler returns the scrape endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
