// Package metrics exposes the Prometheus collectors this process
// registers, grounded directly on observability.Payoutd()'s
// sync.Once-guarded, lazily-constructed registry pattern.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransferQueueMetrics tracks health of the pending-transfer drain loop.
type TransferQueueMetrics struct {
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	depth    prometheus.Gauge
	executed *prometheus.CounterVec
}

var (
	transferQueueOnce sync.Once
	transferQueueReg  *TransferQueueMetrics

	schedulerOnce sync.Once
	schedulerReg  *SchedulerMetrics

	rewardsOnce sync.Once
	rewardsReg  *RewardsMetrics
)

// TransferQueue returns the lazily-initialized transfer queue registry.
func TransferQueue() *TransferQueueMetrics {
	transferQueueOnce.Do(func() {
		transferQueueReg = &TransferQueueMetrics{
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "liquidneuron",
				Subsystem: "transferqueue",
				Name:      "transfer_latency_seconds",
				Help:      "Latency distribution for settled pending transfers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"unit"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidneuron",
				Subsystem: "transferqueue",
				Name:      "errors_total",
				Help:      "Count of transfer failures segmented by unit and reason.",
			}, []string{"unit", "reason"}),
			depth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidneuron",
				Subsystem: "transferqueue",
				Name:      "pending_depth",
				Help:      "Number of transfers currently pending settlement.",
			}),
			executed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidneuron",
				Subsystem: "transferqueue",
				Name:      "executed_total",
				Help:      "Count of transfers successfully settled, segmented by unit.",
			}, []string{"unit"}),
		}
		prometheus.MustRegister(
			transferQueueReg.latency,
			transferQueueReg.errors,
			transferQueueReg.depth,
			transferQueueReg.executed,
		)
	})
	return transferQueueReg
}

func (m *TransferQueueMetrics) ObserveLatency(unit string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(unit).Observe(d.Seconds())
}

func (m *TransferQueueMetrics) RecordError(unit, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(unit, reason).Inc()
}

func (m *TransferQueueMetrics) RecordExecuted(unit string) {
	if m == nil {
		return
	}
	m.executed.WithLabelValues(unit).Inc()
}

func (m *TransferQueueMetrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

// SchedulerMetrics tracks health of the cooperative task scheduler.
type SchedulerMetrics struct {
	tasksRun    *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	taskLatency *prometheus.HistogramVec
}

// Scheduler returns the lazily-initialized scheduler registry.
func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerReg = &SchedulerMetrics{
			tasksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidneuron",
				Subsystem: "scheduler",
				Name:      "tasks_total",
				Help:      "Count of scheduled tasks executed, segmented by tag and outcome.",
			}, []string{"tag", "outcome"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidneuron",
				Subsystem: "scheduler",
				Name:      "queue_depth",
				Help:      "Number of tasks currently queued for execution.",
			}),
			taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "liquidneuron",
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Latency distribution of scheduled task execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"tag"}),
		}
		prometheus.MustRegister(
			schedulerReg.tasksRun,
			schedulerReg.queueDepth,
			schedulerReg.taskLatency,
		)
	})
	return schedulerReg
}

func (m *SchedulerMetrics) RecordTask(tag, outcome string) {
	if m == nil {
		return
	}
	m.tasksRun.WithLabelValues(tag, outcome).Inc()
}

func (m *SchedulerMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *SchedulerMetrics) ObserveTaskLatency(tag string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskLatency.WithLabelValues(tag).Observe(d.Seconds())
}

// RewardsMetrics tracks reward-dispatch and secondary-distribution runs.
type RewardsMetrics struct {
	dispatched   *prometheus.CounterVec
	distributed  prometheus.Counter
	lastRunTs    prometheus.Gauge
}

// Rewards returns the lazily-initialized rewards registry.
func Rewards() *RewardsMetrics {
	rewardsOnce.Do(func() {
		rewardsReg = &RewardsMetrics{
			dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidneuron",
				Subsystem: "rewards",
				Name:      "dispatched_total",
				Help:      "Count of reward dispatch runs, segmented by origin neuron.",
			}, []string{"neuron"}),
			distributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "liquidneuron",
				Subsystem: "rewards",
				Name:      "secondary_distributions_total",
				Help:      "Count of completed secondary distribution runs.",
			}),
			lastRunTs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidneuron",
				Subsystem: "rewards",
				Name:      "last_distribution_timestamp_seconds",
				Help:      "Unix timestamp of the last secondary distribution run.",
			}),
		}
		prometheus.MustRegister(
			rewardsReg.dispatched,
			rewardsReg.distributed,
			rewardsReg.lastRunTs,
		)
	})
	return rewardsReg
}

func (m *RewardsMetrics) RecordDispatch(neuron string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(neuron).Inc()
}

func (m *RewardsMetrics) RecordDistribution(ts int64) {
	if m == nil {
		return
	}
	m.distributed.Inc()
	m.lastRunTs.Set(float64(ts))
}
