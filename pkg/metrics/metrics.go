// Package metrics holds the Prometheus collectors of the resilience layer.
// All methods are safe on a nil *Metrics so tests can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moometrics"

// Breaker state values exported by the breaker_state gauge.
const (
	BreakerStateClosed   = 0
	BreakerStateHalfOpen = 1
	BreakerStateOpen     = 2
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Registry *prometheus.Registry

	// Breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec

	// Dependency metrics
	DependencyCalls   *prometheus.CounterVec
	DependencyLatency *prometheus.HistogramVec

	// Task metrics
	TaskEvents   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	DeadLetters  *prometheus.CounterVec
	QueueDepth   *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics on a fresh registry,
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per dependency (0=closed, 1=half_open, 2=open).",
		}, []string{"dependency"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"dependency", "from", "to"}),
		BreakerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected by an open circuit breaker.",
		}, []string{"dependency"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, miss, error).",
		}, []string{"namespace", "result"}),

		DependencyCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_responses_total",
			Help:      "Responses served per dependency by source (cache, live, fallback).",
		}, []string{"dependency", "source"}),
		DependencyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dependency_call_duration_seconds",
			Help:      "Latency of real dependency calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"dependency", "outcome"}),

		TaskEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Background task lifecycle events (submitted, succeeded, retried, failed, revoked).",
		}, []string{"task", "event"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_run_duration_seconds",
			Help:      "Duration of a single task attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"task"}),
		DeadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Tasks moved to the dead-letter store.",
		}, []string{"task"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Task ids per queue structure (ready, scheduled, processing).",
		}, []string{"queue"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SetBreakerState records the current state of a breaker.
func (m *Metrics) SetBreakerState(dependency string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(dependency).Set(float64(state))
}

// RecordBreakerTransition counts a state change.
func (m *Metrics) RecordBreakerTransition(dependency, from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues(dependency, from, to).Inc()
}

// RecordBreakerRejection counts a fast-failed call.
func (m *Metrics) RecordBreakerRejection(dependency string) {
	if m == nil {
		return
	}
	m.BreakerRejections.WithLabelValues(dependency).Inc()
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(ns, result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(ns, result).Inc()
}

// RecordResponse counts a served dependency response by source.
func (m *Metrics) RecordResponse(dependency, source string) {
	if m == nil {
		return
	}
	m.DependencyCalls.WithLabelValues(dependency, source).Inc()
}

// ObserveCall records the latency of a real dependency call.
func (m *Metrics) ObserveCall(dependency, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.DependencyLatency.WithLabelValues(dependency, outcome).Observe(d.Seconds())
}

// RecordTaskEvent counts a task lifecycle event.
func (m *Metrics) RecordTaskEvent(task, event string) {
	if m == nil {
		return
	}
	m.TaskEvents.WithLabelValues(task, event).Inc()
}

// ObserveTask records the duration of one task attempt.
func (m *Metrics) ObserveTask(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordDeadLetter counts a task written to the dead-letter store.
func (m *Metrics) RecordDeadLetter(task string) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(task).Inc()
}

// SetQueueDepth records the size of one queue structure.
func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
