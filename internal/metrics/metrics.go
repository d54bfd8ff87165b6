// Package metrics defines the prometheus instruments of the recommendation
// pipeline.
//
//	metrics.RecordEmbedding("openai", 64, nil)
//	metrics.RecordIndexOutcome("rebuilt_corrupt")
//	metrics.ObserveStage("data_loading", "completed", time.Second)
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EmbeddingRequestsTotal counts embed calls by provider and outcome.
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_embedding_requests_total",
			Help: "Total number of embedding calls",
		},
		[]string{"provider", "outcome"},
	)

	// EmbeddedTextsTotal counts texts embedded by provider.
	EmbeddedTextsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_embedded_texts_total",
			Help: "Total number of texts embedded",
		},
		[]string{"provider"},
	)

	// ProviderFallbacksTotal counts substitutions of the fallback embedder.
	ProviderFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_embedding_fallbacks_total",
			Help: "Total number of times the fallback embedder replaced the configured one",
		},
		[]string{"configured", "reason"},
	)

	// IndexOutcomesTotal counts build-or-load decisions.
	IndexOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_index_outcomes_total",
			Help: "Total number of index build-or-load outcomes",
		},
		[]string{"outcome"},
	)

	// IndexEntries reports the current number of index entries.
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierag_index_entries",
			Help: "Number of entries in the ready vector index",
		},
	)

	// GenerationDuration tracks generator latency by provider and outcome.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierag_generation_duration_seconds",
			Help:    "Duration of generation calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	// StageDuration tracks pipeline stage latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierag_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage", "status"},
	)

	// BreakerState reports the generator circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movierag_generator_breaker_state",
			Help: "Generator circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// BreakerTransitionsTotal counts circuit breaker state changes.
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_generator_breaker_transitions_total",
			Help: "Total number of generator circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// QueriesTotal counts recommendation queries by outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierag_queries_total",
			Help: "Total number of recommendation queries",
		},
		[]string{"kind", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordEmbedding records one embed call over n texts.
func RecordEmbedding(provider string, n int, err error) {
	EmbeddingRequestsTotal.WithLabelValues(provider, outcome(err)).Inc()
	if err == nil {
		EmbeddedTextsTotal.WithLabelValues(provider).Add(float64(n))
	}
}

// RecordFallback records a fallback embedder substitution.
func RecordFallback(configured, reason string) {
	ProviderFallbacksTotal.WithLabelValues(configured, reason).Inc()
}

// RecordIndexOutcome records how build-or-load resolved.
func RecordIndexOutcome(outcome string) {
	IndexOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SetIndexEntries updates the index size gauge.
func SetIndexEntries(n int) {
	IndexEntries.Set(float64(n))
}

// ObserveGeneration records a generator call.
func ObserveGeneration(provider string, d time.Duration, err error) {
	GenerationDuration.WithLabelValues(provider, outcome(err)).Observe(d.Seconds())
}

// ObserveStage records a pipeline stage run.
func ObserveStage(stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(name, from, to string, state float64) {
	BreakerState.WithLabelValues(name).Set(state)
	BreakerTransitionsTotal.WithLabelValues(name, from, to).Inc()
}

// RecordQuery records a recommendation query.
func RecordQuery(kind string, err error) {
	QueriesTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
