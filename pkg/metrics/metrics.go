// Package metrics defines the Prometheus metric collectors used by the
// recommender and the reindex job, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	RecommendationsTotal   *prometheus.CounterVec
	RecommendationLatency  prometheus.Histogram
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	FeedbackAppendsTotal   *prometheus.CounterVec
	FeedbackRecordsTotal   *prometheus.CounterVec
	KeywordExtractFailures prometheus.Counter
	ReindexRunsTotal       *prometheus.CounterVec
	ReindexDuration        prometheus.Histogram
	ItemMultiplier         prometheus.Histogram
	ItemsAdjusted          prometheus.Gauge
	IndexVectors           prometheus.Gauge
	IndexReloadsTotal      *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction does not
// collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
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
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommendations_total",
				Help: "Recommendation requests by source (index, fallback, error).",
			},
			[]string{"source"},
		),
		RecommendationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recommendation_latency_seconds",
				Help:    "Latency of encode + nearest-neighbour search.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recommendation_cache_hits_total",
				Help: "Total number of recommendation cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recommendation_cache_misses_total",
				Help: "Total number of recommendation cache misses.",
			},
		),
		FeedbackAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedback_appends_total",
				Help: "Feedback records appended by status.",
			},
			[]string{"status"},
		),
		FeedbackRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_feedback_records_total",
				Help: "Feedback records seen by the aggregator by polarity and outcome (applied, skipped, malformed).",
			},
			[]string{"polarity", "outcome"},
		),
		KeywordExtractFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keyword_extraction_failures_total",
				Help: "Keyword extraction calls that failed and fell back to the title.",
			},
		),
		ReindexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_runs_total",
				Help: "Reindex runs by status (success, noop, failed).",
			},
			[]string{"status"},
		),
		ReindexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reindex_duration_seconds",
				Help:    "Wall time of a full aggregate + rebuild run.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		ItemMultiplier: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reindex_item_multiplier",
				Help:    "Distribution of per-item multipliers produced by the last runs.",
				Buckets: []float64{0.5, 0.7, 0.8, 0.9, 0.95, 0.99, 1, 1.01, 1.05, 1.1, 1.2, 1.5, 2},
			},
		),
		ItemsAdjusted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reindex_items_adjusted",
				Help: "Number of items whose multiplier differed from 1 in the last run.",
			},
		),
		IndexVectors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vector_index_vectors",
				Help: "Number of vectors in the currently installed index.",
			},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vector_index_reloads_total",
				Help: "Index reloads by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecommendationsTotal,
		m.RecommendationLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeedbackAppendsTotal,
		m.FeedbackRecordsTotal,
		m.KeywordExtractFailures,
		m.ReindexRunsTotal,
		m.ReindexDuration,
		m.ItemMultiplier,
		m.ItemsAdjusted,
		m.IndexVectors,
		m.IndexReloadsTotal,
	)

	return m
}

// NewNop returns metrics registered against a private registry, for callers
// (mostly tests) that do not scrape.
func NewNop() *Metrics {
	return NewWithRegisterer(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
