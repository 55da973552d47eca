// Package metrics provides Prometheus metrics collection for the credit
// approval service: prediction throughput and latency, model reloads, and
// feature-pipeline failures, exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the serving process.
type Metrics struct {
	// Prediction metrics
	Predictions       prometheus.Counter   // Total number of predictions served
	PredictionErrors  prometheus.Counter   // Total number of failed predictions
	PredictionLatency prometheus.Histogram // End-to-end prediction latency in seconds
	Confidence        prometheus.Histogram // Distribution of decision confidence scores
	Approvals         prometheus.Counter   // Total number of APPROVED decisions

	// Model lifecycle metrics
	ModelReloads      prometheus.Counter // Total number of successful model reloads
	ModelReloadErrors prometheus.Counter // Total number of failed model reloads
	ModelVersion      prometheus.Gauge   // Version number of the active model
	TransformFailures prometheus.Counter // Total number of feature transform failures
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing without touching the global Prometheus registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of decision confidence scores",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		Approvals: factory.NewCounter(prometheus.CounterOpts{
			Name: "approvals_total",
			Help: "Total number of APPROVED decisions",
		}),
		ModelReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_reloads_total",
			Help: "Total number of successful model reloads",
		}),
		ModelReloadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_reload_errors_total",
			Help: "Total number of failed model reloads",
		}),
		ModelVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_version",
			Help: "Version number of the active model",
		}),
		TransformFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transform_failures_total",
			Help: "Total number of feature transform failures",
		}),
	}
}

// Model service metric hooks (model.MetricsInterface).

func (m *Metrics) PredictionsInc()                    { m.Predictions.Inc() }
func (m *Metrics) PredictionFailuresInc()             { m.PredictionErrors.Inc() }
func (m *Metrics) PredictionLatencyObserve(v float64) { m.PredictionLatency.Observe(v) }
func (m *Metrics) ModelReloadsInc()                   { m.ModelReloads.Inc() }
func (m *Metrics) ModelReloadFailuresInc()            { m.ModelReloadErrors.Inc() }
func (m *Metrics) ModelVersionSet(v float64)          { m.ModelVersion.Set(v) }
