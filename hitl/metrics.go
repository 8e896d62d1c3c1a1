package hitl

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for an Exchange.
//
// Metrics exposed (namespace "hitl"):
//
//   - requests_total (counter): requests published to the outbound stream.
//   - responses_total (counter): responses matched to a request. Labels: outcome.
//   - unmatched_responses_total (counter): responses with no outstanding
//     request. Labels: policy (rejected, buffered).
//   - abandoned_requests_total (counter): requests that ended without an
//     answer. Labels: reason (timeout, canceled, closed).
//   - pending_requests (gauge): requests currently awaiting an answer.
//   - wait_seconds (histogram): time from registration to answer.
//
// Correlation keys are deliberately not used as labels; they are unbounded.
type Metrics struct {
	requests  prometheus.Counter
	responses *prometheus.CounterVec
	unmatched *prometheus.CounterVec
	abandoned *prometheus.CounterVec
	pending   prometheus.Gauge
	wait      prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers the exchange metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "requests_total",
			Help:      "Requests published to the outbound stream",
		}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "responses_total",
			Help:      "Responses matched to an outstanding request",
		}, []string{"outcome"}),
		unmatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "unmatched_responses_total",
			Help:      "Responses submitted with no outstanding request",
		}, []string{"policy"}),
		abandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "abandoned_requests_total",
			Help:      "Requests that ended without an answer",
		}, []string{"reason"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hitl",
			Name:      "pending_requests",
			Help:      "Requests currently awaiting an answer",
		}),
		wait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hitl",
			Name:      "wait_seconds",
			Help:      "Time from request registration to matched response",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
	}
}

func (m *Metrics) on() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

func (m *Metrics) requestRegistered() {
	if !m.on() {
		return
	}
	m.pending.Inc()
}

func (m *Metrics) requestPublished() {
	if !m.on() {
		return
	}
	m.requests.Inc()
}

func (m *Metrics) requestAnswered(outcome Outcome, waited time.Duration) {
	if !m.on() {
		return
	}
	m.responses.WithLabelValues(outcome.String()).Inc()
	m.wait.Observe(waited.Seconds())
	m.pending.Dec()
}

func (m *Metrics) requestAbandoned(reason string) {
	if !m.on() {
		return
	}
	m.abandoned.WithLabelValues(reason).Inc()
	m.pending.Dec()
}

func (m *Metrics) responseUnmatched(policy string) {
	if !m.on() {
		return
	}
	m.unmatched.WithLabelValues(policy).Inc()
}

// Disable stops recording. Registered collectors keep their last values.
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
