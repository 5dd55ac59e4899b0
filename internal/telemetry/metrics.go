// Package telemetry holds the Prometheus collectors and the OpenTelemetry
// tracer used by the assessment pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ppiankov/veracity/internal/model"
)

const namespace = "veracity"

// Metrics groups the pipeline collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// assessments counts finished assessments.
	// Labels: confidence (HIGH, MEDIUM, LOW, error)
	assessments *prometheus.CounterVec

	// stageDuration measures each pipeline stage.
	// Labels: stage, status (passed, failed, error, skipped)
	stageDuration *prometheus.HistogramVec

	// signals tracks the distribution of the raw stage values.
	// Labels: signal (attribution, consistency, entropy, external, combined)
	signals *prometheus.HistogramVec

	// externalFailures counts degraded external checks.
	// Labels: reason
	externalFailures *prometheus.CounterVec

	// fallbacks counts multi-stage requests answered single-stage
	fallbacks prometheus.Counter

	// safetyRatio tracks safety_score / max_safety_score
	safetyRatio prometheus.Histogram
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Total assessments by confidence tier",
		}, []string{"confidence"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		signals: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_value",
			Help:      "Distribution of safety signal values",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.5, 2.0, 3.0},
		}, []string{"signal"}),
		externalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "failures_total",
			Help:      "External fact checks that could not complete, by reason",
		}, []string{"reason"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "multistage",
			Name:      "fallbacks_total",
			Help:      "Multi-stage requests that fell back to single-stage retrieval",
		}),
		safetyRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "safety_ratio",
			Help:      "Passed checks divided by counted checks",
			Buckets:   []float64{0, 0.25, 0.34, 0.5, 0.67, 0.75, 1.0},
		}),
	}
}

// Registry exposes the underlying registry for exporters
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records one stage outcome
func (m *Metrics) ObserveStage(stage model.Stage, status model.StageStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), string(status)).Observe(d.Seconds())
}

// ObserveExternalFailure records a degraded external check
func (m *Metrics) ObserveExternalFailure(reason model.EvidenceErrorReason) {
	if m == nil {
		return
	}
	m.externalFailures.WithLabelValues(string(reason)).Inc()
}

// ObserveFallback records a multi-stage fallback
func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// ObserveAssessment records the final values of a finished assessment
func (m *Metrics) ObserveAssessment(a *model.SafetyAssessment) {
	if m == nil || a == nil {
		return
	}

	m.assessments.WithLabelValues(string(a.Confidence)).Inc()
	m.safetyRatio.Observe(a.ConfidenceRatio())

	m.signals.WithLabelValues("attribution").Observe(a.AttributionScore)
	m.signals.WithLabelValues("consistency").Observe(a.ConsistencyScore)
	m.signals.WithLabelValues("entropy").Observe(a.SemanticEntropy)
	if a.FactCheck != nil {
		m.signals.WithLabelValues("combined").Observe(a.FactCheck.CombinedScore)
		if !a.FactCheck.External.Failed() {
			m.signals.WithLabelValues("external").Observe(a.FactCheck.ExternalScore)
		}
	}
}

// ObserveError records an assessment that ended with a fatal error
func (m *Metrics) ObserveError() {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues("error").Inc()
}

// WriteToTextfile writes the current values in the node_exporter textfile format
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
