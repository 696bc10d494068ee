// Package metrics owns the prometheus registry for the advisor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by the pipeline.
// A nil *Metrics is valid and records nothing.
// ⭐ SSOT: 메트릭 이름은 여기서만 정의
type Metrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	runs           *prometheus.CounterVec
	rankerFallback *prometheus.CounterVec
	planIterations *prometheus.HistogramVec
	evidenceDocs   *prometheus.HistogramVec
}

// New creates a registry with all advisor collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "advisor",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of one pipeline stage.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "stage_failures_total",
			Help:      "Stages that aborted a run.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		rankerFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "ranker_fallback_total",
			Help:      "Rerank calls served by the pass-through path.",
		}, []string{"reason"}),
		planIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "advisor",
			Name:      "plan_iterations",
			Help:      "Iterations used by the plan-and-execute controller.",
			Buckets:   prometheus.LinearBuckets(0, 2, 11),
		}, []string{"stage", "terminal"}),
		evidenceDocs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "advisor",
			Name:      "evidence_documents",
			Help:      "Evidence documents collected per stage.",
			Buckets:   prometheus.LinearBuckets(0, 3, 8),
		}, []string{"stage"}),
	}

	m.registry.MustRegister(
		m.stageDuration,
		m.stageFailures,
		m.runs,
		m.rankerFallback,
		m.planIterations,
		m.evidenceDocs,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records the duration of a completed stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// StageFailed counts a stage that aborted its run
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// RunFinished counts a run by outcome ("completed", "failed")
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// RankerFallback counts a rerank served without scores
func (m *Metrics) RankerFallback(reason string) {
	if m == nil {
		return
	}
	m.rankerFallback.WithLabelValues(reason).Inc()
}

// PlanIterations records how many iterations a controller used
func (m *Metrics) PlanIterations(stage, terminal string, n int) {
	if m == nil {
		return
	}
	m.planIterations.WithLabelValues(stage, terminal).Observe(float64(n))
}

// EvidenceCollected records how many documents a stage gathered
func (m *Metrics) EvidenceCollected(stage string, n int) {
	if m == nil {
		return
	}
	m.evidenceDocs.WithLabelValues(stage).Observe(float64(n))
}
