package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics provides Prometheus-compatible instrumentation for a BSP
// run. All metrics are namespaced "bspgraph":
//
//  1. active_vertices (gauge): size of the active set at the start of the
//     current superstep. Labels: run_id.
//  2. superstep_duration_ms (histogram): wall-clock duration of one
//     superstep (fan-out + barrier + merge + recompute). Labels: run_id.
//  3. merge_conflicts_total (counter): MergeError occurrences. Labels:
//     run_id, reason (unknown_type, type_mismatch).
//  4. node_failures_total (counter): contained vertex failures. Labels:
//     run_id, vertex_id.
//  5. supersteps_total (counter): supersteps completed. Labels: run_id.
//  6. budget_exceeded_total (counter): runs that terminated via
//     ReasonBudgetExceeded. Labels: run_id.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.NewEngine(g, graph.WithMetrics(metrics))
type EngineMetrics struct {
	activeVertices    *prometheus.GaugeVec
	superstepDuration *prometheus.HistogramVec
	mergeConflicts    *prometheus.CounterVec
	nodeFailures      *prometheus.CounterVec
	supersteps        *prometheus.CounterVec
	budgetExceeded    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers every EngineMetrics series with
// the given registry. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *EngineMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &EngineMetrics{enabled: true}

	m.activeVertices = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bspgraph",
		Name:      "active_vertices",
		Help:      "Size of the active set at the start of the current superstep",
	}, []string{"run_id"})

	m.superstepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bspgraph",
		Name:      "superstep_duration_ms",
		Help:      "Duration of one superstep (fan-out, barrier, merge, recompute) in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id"})

	m.mergeConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bspgraph",
		Name:      "merge_conflicts_total",
		Help:      "MergeError occurrences during fan-in merge",
	}, []string{"run_id", "reason"})

	m.nodeFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bspgraph",
		Name:      "node_failures_total",
		Help:      "Vertex function errors contained as NodeFailure",
	}, []string{"run_id", "vertex_id"})

	m.supersteps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bspgraph",
		Name:      "supersteps_total",
		Help:      "Supersteps completed",
	}, []string{"run_id"})

	m.budgetExceeded = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bspgraph",
		Name:      "budget_exceeded_total",
		Help:      "Runs that terminated with ReasonBudgetExceeded",
	}, []string{"run_id"})

	return m
}

// RecordSuperstep records one completed superstep's duration and the size
// of the active set it started with.
func (m *EngineMetrics) RecordSuperstep(runID string, activeCount int, dur time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.activeVertices.WithLabelValues(runID).Set(float64(activeCount))
	m.superstepDuration.WithLabelValues(runID).Observe(float64(dur.Milliseconds()))
	m.supersteps.WithLabelValues(runID).Inc()
}

// RecordMergeConflict increments the merge conflict counter for a run.
func (m *EngineMetrics) RecordMergeConflict(runID string, reason MergeReason) {
	if !m.isEnabled() {
		return
	}
	m.mergeConflicts.WithLabelValues(runID, string(reason)).Inc()
}

// RecordNodeFailure increments the node failure counter for a vertex.
func (m *EngineMetrics) RecordNodeFailure(runID, vertexID string) {
	if !m.isEnabled() {
		return
	}
	m.nodeFailures.WithLabelValues(runID, vertexID).Inc()
}

// RecordBudgetExceeded increments the budget-exceeded counter for a run.
func (m *EngineMetrics) RecordBudgetExceeded(runID string) {
	if !m.isEnabled() {
		return
	}
	m.budgetExceeded.WithLabelValues(runID).Inc()
}

func (m *EngineMetrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable temporarily stops metric recording (useful for testing).
func (m *EngineMetrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *EngineMetrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
