// Package metrics provides the Prometheus instrumentation sink for the
// service host.
//
// HostMetrics owns a dedicated registry so tests can create throwaway
// instances without fighting the default global registry. The Reporter
// exposes the registry over HTTP and is itself a lifecycle phase: the host
// starts it before any component and stops it after everything else.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Stage labels whether a phase observation belongs to startup or shutdown.
const (
	StageStart    = "start"
	StageShutdown = "shutdown"
)

// HostMetrics aggregates every collector the host and its scaling units
// report into. All methods are safe for concurrent use and nil-safe so that
// components constructed without a sink keep working.
type HostMetrics struct {
	registry *prometheus.Registry

	// AssemblyFailures counts component resolution/construction errors.
	AssemblyFailures prometheus.Counter

	// StartFailures counts failed startup phases.
	StartFailures prometheus.Counter

	// ShutdownStepErrors counts teardown steps that reported an error and
	// were skipped over.
	ShutdownStepErrors prometheus.Counter

	// HealthUp mirrors the component state: 1 while UP, 0 while DOWN.
	HealthUp prometheus.Gauge

	phaseSeconds  *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
	itemsAccepted *prometheus.CounterVec
	itemsDone     *prometheus.CounterVec
	itemsRejected *prometheus.CounterVec
	itemsDropped  *prometheus.CounterVec
}

// NewHostMetrics creates the host collectors on a fresh registry.
func NewHostMetrics() *HostMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &HostMetrics{
		registry: reg,
		AssemblyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "assembly_failures_total",
			Help:      "Component resolution or construction failures.",
		}),
		StartFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "start_failures_total",
			Help:      "Startup phases that failed.",
		}),
		ShutdownStepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "shutdown_step_errors_total",
			Help:      "Teardown steps that reported an error.",
		}),
		HealthUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blobfront",
			Name:      "health_up",
			Help:      "1 while the service advertises UP, 0 otherwise.",
		}),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blobfront",
			Name:      "lifecycle_phase_seconds",
			Help:      "Elapsed time per startup/shutdown phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "phase"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "blobfront",
			Name:      "scaling_queue_depth",
			Help:      "Items waiting in a scaling unit's intake queue.",
		}, []string{"pool"}),
		itemsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "scaling_items_accepted_total",
			Help:      "Items accepted into a scaling unit.",
		}, []string{"pool"}),
		itemsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "scaling_items_delivered_total",
			Help:      "Items delivered to a scaling unit's downstream target.",
		}, []string{"pool"}),
		itemsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "scaling_items_rejected_total",
			Help:      "Submissions rejected because the scaling unit was shut down.",
		}, []string{"pool"}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobfront",
			Name:      "scaling_items_dropped_total",
			Help:      "Queued items discarded by the drain policy at shutdown.",
		}, []string{"pool"}),
	}

	reg.MustRegister(
		m.AssemblyFailures,
		m.StartFailures,
		m.ShutdownStepErrors,
		m.HealthUp,
		m.phaseSeconds,
		m.queueDepth,
		m.itemsAccepted,
		m.itemsDone,
		m.itemsRejected,
		m.itemsDropped,
	)
	return m
}

// Registry returns the underlying registry for the reporter to expose.
func (m *HostMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePhase records the elapsed time of one lifecycle phase.
func (m *HostMetrics) ObservePhase(stage, phase string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(stage, phase).Observe(elapsed.Seconds())
}

// SetQueueDepth records the current intake queue depth of a pool.
func (m *HostMetrics) SetQueueDepth(pool string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(pool).Set(float64(depth))
}

// ItemAccepted counts one accepted submission.
func (m *HostMetrics) ItemAccepted(pool string) {
	if m == nil {
		return
	}
	m.itemsAccepted.WithLabelValues(pool).Inc()
}

// ItemDelivered counts one item handed to the downstream target.
func (m *HostMetrics) ItemDelivered(pool string) {
	if m == nil {
		return
	}
	m.itemsDone.WithLabelValues(pool).Inc()
}

// ItemRejected counts one submission refused after shutdown began.
func (m *HostMetrics) ItemRejected(pool string) {
	if m == nil {
		return
	}
	m.itemsRejected.WithLabelValues(pool).Inc()
}

// ItemsDropped counts queued items discarded at shutdown.
func (m *HostMetrics) ItemsDropped(pool string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.itemsDropped.WithLabelValues(pool).Add(float64(n))
}
