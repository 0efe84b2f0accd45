// Package middleware provides cross-cutting concerns for the search and
// consensus engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-quorum/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements
// MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks search run performance, LLM usage, consensus
// outcomes, and routing decisions.
type PrometheusMetrics struct {
	operationLatency *prometheus.HistogramVec
	llmTokens        *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	runCounters      *prometheus.CounterVec
	runGauges        *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and
// registers all metrics with the provided registerer. Passing nil
// registers against the default global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_operation_duration_seconds",
				Help:    "Execution time of engine operations (search, verify, aggregate).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "controller"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens consumed by LLM requests, by direction.",
			},
			[]string{"model", "status", "direction"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "LLM requests issued, by outcome.",
			},
			[]string{"model", "status"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "LLM request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		runCounters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_run_events_total",
				Help: "Run-level events: consensus reached, early stops, abstentions, escalations.",
			},
			[]string{"event", "controller"},
		),
		runGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quorum_run_state",
				Help: "Most recent run-level values such as agreement score and candidate count.",
			},
			[]string{"metric", "controller"},
		),
	}
}

// RecordLatency records operation execution time.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.operationLatency.WithLabelValues(operation, labels["controller"]).Observe(duration.Seconds())
}

// RecordCounter increments the counter matching the metric name.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(labels["model"], labels["status"], labels["direction"]).Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(labels["model"], labels["status"]).Add(value)
	default:
		pm.runCounters.WithLabelValues(metric, labels["controller"]).Add(value)
	}
}

// RecordGauge sets a run-level gauge value.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.runGauges.WithLabelValues(metric, labels["controller"]).Set(value)
}

// RecordHistogram records a histogram observation, routing LLM request
// durations to their dedicated histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == "llm_request_duration_seconds" {
		pm.llmLatency.WithLabelValues(labels["model"], labels["status"]).Observe(value)
		return
	}
	pm.operationLatency.WithLabelValues(metric, labels["controller"]).Observe(value)
}
