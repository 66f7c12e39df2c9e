// Package scheduler implements the daemon's cooperative, single-threaded
// task queue: a min-heap of tasks keyed by execute time, with a per-tag
// single-flight guard so at most one execution of a given tag is ever in
// flight.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"liquidneuron/guard"
	"liquidneuron/observability/metrics"
)

// Tag names one of the scheduler's fixed set of recurring tasks.
type Tag string

const (
	TagInitializeMainNeurons   Tag = "InitializeMainNeurons"
	TagDistributeICP           Tag = "DistributeICP"
	TagProcessVoting           Tag = "ProcessVoting"
	TagProcessPendingTransfers Tag = "ProcessPendingTransfers"
	TagProcessLogic            Tag = "ProcessLogic"
	TagSpawnNeurons            Tag = "SpawnNeurons"
	TagRefreshShortTerm        Tag = "RefreshShortTerm"
	TagRefreshLongTerm         Tag = "RefreshLongTerm"
	TagDistributeRewards       Tag = "DistributeRewards"
)

// Default periods per tag, and the flat delay applied after a failed run.
const (
	RetryDelay              = 10 * time.Second
	PeriodProcessVoting     = 30 * time.Minute
	PeriodDistributeICP     = time.Hour
	PeriodRefreshShortTerm  = time.Hour
	PeriodRefreshLongTerm   = time.Hour
	PeriodSpawnNeurons      = 24 * time.Hour
	PeriodDistributeRewards = 24 * time.Hour
	PeriodProcessLogic      = time.Hour
)

// Func is the work a scheduled task performs. Returning an error means the
// task failed transiently and should be retried after RetryDelay rather
// than on its usual period.
type Func func(ctx context.Context) error

// task is one entry in the scheduler's min-heap.
type task struct {
	tag       Tag
	executeAt time.Time
	run       Func
	period    time.Duration
	index     int // heap.Interface bookkeeping
}

// taskQueue implements container/heap.Interface, ordered by executeAt.
type taskQueue []*task

func (q taskQueue) Len() int            { return len(q) }
func (q taskQueue) Less(i, j int) bool  { return q[i].executeAt.Before(q[j].executeAt) }
func (q taskQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Scheduler is a cooperative, single-threaded min-priority task queue.
// Tick must be called from one goroutine at a time; it is not safe to
// call Tick concurrently with itself, though Schedule may be called from
// any goroutine to enqueue follow-up work.
type Scheduler struct {
	mu      sync.Mutex
	queue   taskQueue
	guard   *guard.TaskGuard
	metrics *metrics.SchedulerMetrics
	now     func() time.Time
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	s := &Scheduler{
		guard:   guard.NewTaskGuard(),
		metrics: metrics.Scheduler(),
		now:     time.Now,
	}
	heap.Init(&s.queue)
	return s
}

// Schedule enqueues run under tag to execute at executeAt, rescheduling
// itself every period after a successful run (0 disables auto-reschedule).
func (s *Scheduler) Schedule(tag Tag, executeAt time.Time, period time.Duration, run Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.queue, &task{tag: tag, executeAt: executeAt, run: run, period: period})
	s.metrics.SetQueueDepth(len(s.queue))
}

// ScheduleNow is a convenience for Schedule(tag, s.now(), period, run).
func (s *Scheduler) ScheduleNow(tag Tag, period time.Duration, run Func) {
	s.Schedule(tag, s.now(), period, run)
}

// Tick pops every task whose executeAt has arrived and runs it to
// completion. A task whose tag is already active (guard.TaskGuard) is
// dropped rather than run twice; its next scheduled occurrence will pick
// up the work. Returns the number of due tasks popped, counting a dropped
// occurrence as well as the ones that ran.
func (s *Scheduler) Tick(ctx context.Context) int {
	ran := 0
	for {
		t := s.popReady()
		if t == nil {
			return ran
		}
		s.runOne(ctx, t)
		ran++
	}
}

// popReady pops and returns the earliest task if its executeAt has
// arrived, or nil if the queue is empty or the earliest task is not yet
// due.
func (s *Scheduler) popReady() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	if s.queue[0].executeAt.After(s.now()) {
		return nil
	}
	t := heap.Pop(&s.queue).(*task)
	s.metrics.SetQueueDepth(len(s.queue))
	return t
}

func (s *Scheduler) runOne(ctx context.Context, t *task) {
	release, err := s.guard.Acquire(string(t.tag))
	if err != nil {
		// Already in flight: drop this occurrence and let the active run's
		// own reschedule (or the next periodic occurrence) pick it back up.
		slog.Debug("scheduler: task already in flight, dropping", "tag", t.tag)
		return
	}
	defer release()

	start := s.now()
	runErr := t.run(ctx)
	s.metrics.ObserveTaskLatency(string(t.tag), s.now().Sub(start))

	if runErr != nil {
		slog.Warn("scheduler: task failed, retrying", "tag", t.tag, "error", runErr)
		s.metrics.RecordTask(string(t.tag), "error")
		s.Schedule(t.tag, s.now().Add(RetryDelay), t.period, t.run)
		return
	}

	s.metrics.RecordTask(string(t.tag), "ok")
	if t.period > 0 {
		s.Schedule(t.tag, s.now().Add(t.period), t.period, t.run)
	}
}

// Len reports the number of tasks currently queued (including ones not yet
// due), for diagnostics and tests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
