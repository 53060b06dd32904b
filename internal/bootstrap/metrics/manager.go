// Package metrics wires the runtime's and store-and-forward engine's
// counters, timers, and gauges to a Prometheus registry: grouped,
// namespaced, registered at construction, with the per-pipeline metrics
// labeled by pipeline id.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Manager registers and updates every metric the SDK emits. Pipeline
// registration is idempotent: RegisterPipeline and UnregisterPipeline
// maintain a set of known pipeline ids, and Manager's own lock protects
// only that set. The per-pipeline label sets are created on first write
// by the Inc/Observe methods, which rely on the Prometheus vectors' own
// concurrency safety.
type Manager struct {
	messagesProcessed  *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	processingErrors   *prometheus.CounterVec

	messagesReceived        prometheus.Counter
	invalidMessagesReceived prometheus.Counter
	storeQueueDepth         prometheus.Gauge

	mu         sync.Mutex
	registered map[string]bool
}

// New creates a Manager and registers its metrics with the default
// Prometheus registry.
func New() *Manager {
	m := newUnregistered()
	prometheus.MustRegister(
		m.messagesProcessed,
		m.processingDuration,
		m.processingErrors,
		m.messagesReceived,
		m.invalidMessagesReceived,
		m.storeQueueDepth,
	)
	return m
}

// NewForTesting creates a Manager without registering it with the default
// registry, so tests can construct many without "already registered"
// panics.
func NewForTesting() *Manager {
	return newUnregistered()
}

func newUnregistered() *Manager {
	return &Manager{
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appfunctions",
			Name:      "pipeline_messages_processed_total",
			Help:      "Messages handed to a pipeline, counted at receipt (an attempt count, not a completion count).",
		}, []string{"pipeline_id"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appfunctions",
			Name:      "pipeline_processing_duration_seconds",
			Help:      "Duration of a full pipeline invocation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"pipeline_id"}),
		processingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appfunctions",
			Name:      "pipeline_processing_errors_total",
			Help:      "Transform function failures by pipeline.",
		}, []string{"pipeline_id"}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "appfunctions",
			Name:      "trigger_messages_received_total",
			Help:      "Messages received by a trigger, before pipeline matching.",
		}),
		invalidMessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "appfunctions",
			Name:      "trigger_invalid_messages_received_total",
			Help:      "Messages a trigger could not decode.",
		}),
		storeQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "appfunctions",
			Name:      "store_forward_queue_depth",
			Help:      "Current number of stored objects awaiting retry.",
		}),
		registered: make(map[string]bool),
	}
}

// RegisterPipeline records pipelineID as known. It is a no-op if already
// registered, so add/remove cycles never double-register.
func (m *Manager) RegisterPipeline(pipelineID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[pipelineID] = true
}

// UnregisterPipeline drops pipelineID's label set from every per-pipeline
// metric.
func (m *Manager) UnregisterPipeline(pipelineID string) {
	m.mu.Lock()
	delete(m.registered, pipelineID)
	m.mu.Unlock()

	m.messagesProcessed.DeleteLabelValues(pipelineID)
	m.processingDuration.DeleteLabelValues(pipelineID)
	m.processingErrors.DeleteLabelValues(pipelineID)
}

func (m *Manager) IncMessagesProcessed(pipelineID string) {
	m.messagesProcessed.WithLabelValues(pipelineID).Inc()
}

func (m *Manager) ObserveProcessingDuration(pipelineID string, seconds float64) {
	m.processingDuration.WithLabelValues(pipelineID).Observe(seconds)
}

func (m *Manager) IncProcessingErrors(pipelineID string) {
	m.processingErrors.WithLabelValues(pipelineID).Inc()
}

func (m *Manager) IncMessagesReceived() { m.messagesReceived.Inc() }

func (m *Manager) IncInvalidMessagesReceived() { m.invalidMessagesReceived.Inc() }

func (m *Manager) IncStoreQueueDepth() { m.storeQueueDepth.Inc() }

func (m *Manager) DecStoreQueueDepth(n int) {
	if n <= 0 {
		return
	}
	m.storeQueueDepth.Sub(float64(n))
}

func (m *Manager) SetStoreQueueDepth(n int) { m.storeQueueDepth.Set(float64(n)) }
