// Package metrics exports pool and pipeline activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/types"
	"github.com/jzx17/cropflow/pkg/worker"
)

// PoolMetrics observes a worker pool through its hooks
type PoolMetrics struct {
	TasksSubmitted prometheus.Counter
	TasksSettled   *prometheus.CounterVec
	TasksInFlight  prometheus.Gauge
	TasksAbandoned prometheus.Counter
	QueueWait      prometheus.Histogram
	TaskLatency    prometheus.Histogram
}

// NewPoolMetrics creates the pool metrics and registers them on reg
func NewPoolMetrics(reg prometheus.Registerer, namespace string) (*PoolMetrics, error) {
	m := &PoolMetrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}),
		TasksSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_settled_total",
			Help:      "Total number of settled tasks by outcome",
		}, []string{"outcome"}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently held by an execution context",
		}),
		TasksAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_abandoned_total",
			Help:      "Tasks left unsettled by pool termination",
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queue_wait_seconds",
			Help:      "Time tasks spent waiting for an idle execution context",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_latency_seconds",
			Help:      "Time from dispatch to settlement",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if err := register(reg, m.TasksSubmitted, m.TasksSettled, m.TasksInFlight, m.TasksAbandoned, m.QueueWait, m.TaskLatency); err != nil {
		return nil, err
	}
	return m, nil
}

// Hooks returns pool hooks feeding m. other, if set, runs after m.
func (m *PoolMetrics) Hooks(other worker.Hooks) worker.Hooks {
	return worker.Hooks{
		OnSubmit: func(taskID string) {
			m.TasksSubmitted.Inc()
			if other.OnSubmit != nil {
				other.OnSubmit(taskID)
			}
		},
		OnDispatch: func(taskID string, queueWait time.Duration) {
			m.TasksInFlight.Inc()
			m.QueueWait.Observe(queueWait.Seconds())
			if other.OnDispatch != nil {
				other.OnDispatch(taskID, queueWait)
			}
		},
		OnSettle: func(s types.Settlement) {
			m.TasksSettled.WithLabelValues(Outcome(s)).Inc()
			if s.Dispatched {
				m.TasksInFlight.Dec()
				m.TaskLatency.Observe(s.Duration.Seconds())
			}
			if other.OnSettle != nil {
				other.OnSettle(s)
			}
		},
		OnAbandon: func(taskID string, dispatched bool) {
			m.TasksAbandoned.Inc()
			if dispatched {
				m.TasksInFlight.Dec()
			}
			if other.OnAbandon != nil {
				other.OnAbandon(taskID, dispatched)
			}
		},
	}
}

// Outcome labels a settlement: completed, timed_out, or the error kind in snake case
func Outcome(s types.Settlement) string {
	switch s.State {
	case types.TaskCompleted:
		return "completed"
	case types.TaskTimedOut:
		return "timed_out"
	}
	kind, ok := types.KindOf(s.Err)
	if !ok {
		return "failed"
	}
	switch kind {
	case types.KindBitmapCreation:
		return "bitmap_creation_error"
	case types.KindTransfer:
		return "transfer_error"
	case types.KindTerminated:
		return "terminated"
	default:
		return "worker_runtime_error"
	}
}

// PipelineMetrics records batch reports
type PipelineMetrics struct {
	Jobs          *prometheus.CounterVec
	BatchDuration prometheus.Histogram
}

// NewPipelineMetrics creates the pipeline metrics and registers them on reg
func NewPipelineMetrics(reg prometheus.Registerer, namespace string) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Jobs by result; failures are labelled with the stage that dropped them",
		}, []string{"result"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch run",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if err := register(reg, m.Jobs, m.BatchDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records a batch report
func (m *PipelineMetrics) Observe(report pipeline.Report) {
	m.Jobs.WithLabelValues("succeeded").Add(float64(report.Succeeded))
	for _, f := range report.Failures {
		m.Jobs.WithLabelValues("failed_" + string(f.Stage)).Inc()
	}
	m.BatchDuration.Observe(report.Duration.Seconds())
}

// register adds every collector, reusing ones that are already registered
func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
