package fluidml

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records swarm-level execution metrics to Prometheus. A Flow
// built without WithMetrics uses a disabled Metrics whose methods are
// no-ops, so instrumentation stays entirely opt-in.
type Metrics struct {
	enabled bool

	activeWorkers prometheus.Gauge
	queueDepth    prometheus.Gauge

	taskLatency *prometheus.HistogramVec

	tasksRun     *prometheus.CounterVec
	tasksSkipped *prometheus.CounterVec
	tasksFailed  *prometheus.CounterVec
	forceCascade *prometheus.CounterVec
}

// NewMetrics registers fluidml's metric set with registry (the default
// global registry if nil) and returns a Metrics that records to it.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,

		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fluidml",
			Name:      "active_workers",
			Help:      "Number of swarm workers currently executing a task",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fluidml",
			Name:      "queue_depth",
			Help:      "Number of ready tasks waiting for a free worker",
		}),
		taskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fluidml",
			Name:      "task_latency_ms",
			Help:      "Duration of a task's Run call in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"run_id", "task_name", "status"}),
		tasksRun: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluidml",
			Name:      "tasks_run_total",
			Help:      "Cumulative count of tasks that actually executed (not skipped)",
		}, []string{"run_id", "task_name"}),
		tasksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluidml",
			Name:      "tasks_skipped_total",
			Help:      "Cumulative count of tasks skipped because a complete prior run existed",
		}, []string{"run_id", "task_name"}),
		tasksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluidml",
			Name:      "tasks_failed_total",
			Help:      "Cumulative count of tasks whose Run returned an error",
		}, []string{"run_id", "task_name"}),
		forceCascade: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluidml",
			Name:      "force_cascade_total",
			Help:      "Cumulative count of tasks forced to rerun, whether by \"all\", by name, or by a '+' cascade",
		}, []string{"run_id", "task_name"}),
	}
}

func (m *Metrics) setActiveWorkers(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.activeWorkers.Set(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) observeLatency(runID, taskName string, d time.Duration, status string) {
	if m == nil || !m.enabled {
		return
	}
	m.taskLatency.WithLabelValues(runID, taskName, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) incRun(runID, taskName string) {
	if m == nil || !m.enabled {
		return
	}
	m.tasksRun.WithLabelValues(runID, taskName).Inc()
}

func (m *Metrics) incSkipped(runID, taskName string) {
	if m == nil || !m.enabled {
		return
	}
	m.tasksSkipped.WithLabelValues(runID, taskName).Inc()
}

func (m *Metrics) incFailed(runID, taskName string) {
	if m == nil || !m.enabled {
		return
	}
	m.tasksFailed.WithLabelValues(runID, taskName).Inc()
}

func (m *Metrics) incForceCascade(runID, taskName string) {
	if m == nil || !m.enabled {
		return
	}
	m.forceCascade.WithLabelValues(runID, taskName).Inc()
}
