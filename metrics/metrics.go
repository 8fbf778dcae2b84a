// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors on a dedicated registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	DiscoveredTotal prometheus.Counter
	StageOutcomes   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	UnmatchedLines  prometheus.Counter
	ChunksLoaded    prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookroad_catalog_requests_total",
			Help: "Total catalog API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookroad_catalog_request_duration_seconds",
			Help:    "Catalog API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	discovered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookroad_isbns_discovered_total",
			Help: "Unique ISBNs returned by discovery across categories.",
		},
	)
	stages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookroad_stage_outcomes_total",
			Help: "Per-item stage results by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookroad_fetch_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookroad_errors_total",
			Help: "Total number of catalog errors by type.",
		},
		[]string{"error_type"},
	)
	unmatched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookroad_toc_unmatched_lines_total",
			Help: "TOC lines that matched neither a heading rule nor the continuation fallback.",
		},
	)
	chunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookroad_vector_chunks",
			Help: "Chunks loaded into the vector store by the last ETL run.",
		},
	)

	registry.MustRegister(requests, requestDuration, discovered, stages, retries, errorsTotal, unmatched, chunks)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		DiscoveredTotal: discovered,
		StageOutcomes:   stages,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		UnmatchedLines:  unmatched,
		ChunksLoaded:    chunks,
	}
}

// IncRequest increments the requests counter for an endpoint.
func (m *Metrics) IncRequest(endpoint string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveDuration records a catalog request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddDiscovered adds n newly discovered ISBNs.
func (m *Metrics) AddDiscovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DiscoveredTotal.Add(float64(n))
}

// IncStage records one stage outcome.
func (m *Metrics) IncStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddUnmatched adds n unmatched TOC lines.
func (m *Metrics) AddUnmatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnmatchedLines.Add(float64(n))
}

// SetChunks records the size of the last vector store load.
func (m *Metrics) SetChunks(n int) {
	if m == nil {
		return
	}
	m.ChunksLoaded.Set(float64(n))
}
