package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects workflow execution metrics.
//
// Metrics exposed (namespace "hitlgraph"):
//
//  1. step_latency_ms (histogram): node execution duration.
//     Labels: node_id, status (success/error).
//  2. steps_total (counter): executed steps. Labels: node_id, status.
//  3. runs_total (counter): finished runs. Labels: status (success/error).
//  4. run_duration_seconds (histogram): wall time of Run/Resume calls.
//
// Node latency for human approval nodes includes the time spent waiting for
// the human, so expect long tails there.
//
// Safe for concurrent use. A nil *PrometheusMetrics records nothing.
type PrometheusMetrics struct {
	stepLatency *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics with
// registry (prometheus.DefaultRegisterer when nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hitlgraph",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000},
		}, []string{"node_id", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitlgraph",
			Name:      "steps_total",
			Help:      "Executed workflow steps",
		}, []string{"node_id", "status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitlgraph",
			Name:      "runs_total",
			Help:      "Finished workflow runs",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hitlgraph",
			Name:      "run_duration_seconds",
			Help:      "Wall time of workflow runs including human wait time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

func (pm *PrometheusMetrics) recordStep(nodeID, status string, latency time.Duration) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
	pm.steps.WithLabelValues(nodeID, status).Inc()
}

func (pm *PrometheusMetrics) recordRun(status string, d time.Duration) {
	if !pm.on() {
		return
	}
	pm.runs.WithLabelValues(status).Inc()
	pm.runDuration.Observe(d.Seconds())
}

// Disable stops metric recording; registered series keep their values.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
