package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/events"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
	"github.com/fluxforge/corescheduler/load"
	"github.com/fluxforge/corescheduler/metrics"
)

// Runner is the Scheduler Runner main loop (§4.6): it drains P0 immediately,
// derives LoadLevel each tick, and admits P1-P3 candidates within that
// tick's budget, dispatching everything to a bounded worker pool.
type Runner struct {
	cfg      Config
	registry *compute.Registry
	graph    *graph.Provider
	state    *knowledge.State
	assessor *load.Assessor
	sink     *metrics.Sink
	pub      events.Publisher

	p0  chan compute.Task
	sem chan struct{}

	activeWorkers atomic.Int64
	latency       *latencyWindow

	// lastSnapshotAt is the BuiltAtUnixNano of the last graph snapshot tick
	// observed; a change resets every task's "completed since snapshot" flag
	// (§4.4), since dependency satisfaction is scoped to the current graph.
	lastSnapshotAt atomic.Int64

	draining atomic.Bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner wires a Runner from its collaborators. pub may be nil, in which
// case lifecycle events are silently dropped.
func NewRunner(cfg Config, registry *compute.Registry, gp *graph.Provider, state *knowledge.State, sink *metrics.Sink, pub events.Publisher) *Runner {
	if cfg.WorkerCap <= 0 {
		cfg.WorkerCap = 4
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if pub == nil {
		pub = events.NewLogPublisher()
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		graph:    gp,
		state:    state,
		assessor: load.NewAssessor(load.DefaultConfig()),
		sink:     sink,
		pub:      pub,
		p0:       make(chan compute.Task, 64),
		sem:      make(chan struct{}, cfg.WorkerCap),
		latency:  newLatencyWindow(60 * time.Second),
		stop:     make(chan struct{}),
	}
}

// SubmitP0 enqueues a P0 task for immediate dispatch, bypassing LoadLevel
// throttling entirely (it is still subject to physical worker availability).
// It blocks only if the P0 submission buffer itself is full.
func (r *Runner) SubmitP0(task compute.Task) {
	if r.draining.Load() {
		return
	}
	r.p0 <- task
}

// Run blocks, ticking every cfg.TickInterval, until ctx is cancelled or
// Shutdown is called.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Shutdown(context.Background())
			return
		case <-r.stop:
			return
		case task := <-r.p0:
			r.dispatchP0(task)
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick runs one P1-P3 dispatch cycle (§4.6 steps 2-5); P0 is drained
// separately, inline in Run, since it must never wait for a tick boundary.
func (r *Runner) tick() {
	if r.draining.Load() {
		return
	}

	r.detectSnapshotChange()

	level := r.currentLevel()
	view := r.state.Read()
	stateSize := view.Size()
	view.Release()
	r.sink.SetAggregate(int(r.activeWorkers.Load()), 0, level, stateSize)

	if level == load.Critical {
		log.Printf("scheduler: LoadLevel=Critical, skipping P1-P3 this tick")
		return
	}

	for _, p := range []compute.Priority{compute.P1, compute.P2, compute.P3} {
		if level == load.High && p != compute.P1 {
			continue
		}
		r.dispatchPriority(p, level)
	}
}

// detectSnapshotChange clears every task's "completed since snapshot" flag
// when the graph snapshot handed out by the provider has changed since the
// last tick, so dependency satisfaction (§4.4) is re-earned against the new
// graph rather than carried over from a stale one.
func (r *Runner) detectSnapshotChange() {
	snap, err := r.graph.Current()
	if err != nil {
		return
	}
	if r.lastSnapshotAt.Swap(snap.BuiltAtUnixNano) != snap.BuiltAtUnixNano {
		r.registry.ResetSnapshotCompletion()
	}
}

func (r *Runner) currentLevel() load.Level {
	actual, estimate := r.latency.p50()
	in := load.Inputs{
		WorkersBusy: int(r.activeWorkers.Load()),
		WorkerCap:   r.cfg.WorkerCap,
		P50Latency:  actual,
		P50Estimate: estimate,
		Backlog:     r.eligibleBacklog(),
	}
	return r.assessor.Assess(in)
}

// eligibleBacklog counts P1-P3 candidates that are dependency-satisfied and
// due to run but have not yet been admitted this tick: the backlog axis
// load.Assessor classifies against (§4.5).
func (r *Runner) eligibleBacklog() int {
	var n int
	for _, p := range []compute.Priority{compute.P1, compute.P2, compute.P3} {
		for _, task := range r.registry.CandidatesFor(p) {
			if !r.registry.DependenciesSatisfied(task.Name()) {
				continue
			}
			if !task.ShouldRun(r.registry.LastRun(task.Name()), r.state) {
				continue
			}
			n++
		}
	}
	return n
}

// dispatchPriority admits candidates at priority p FIFO within this tick's
// budget, filtering by dependency satisfaction and should_run, then hands
// each admitted task to the worker pool.
func (r *Runner) dispatchPriority(p compute.Priority, level load.Level) {
	budget := admissionBudget(int(level), r.cfg.TickInterval)
	var spent time.Duration

	for _, task := range r.registry.CandidatesFor(p) {
		if !r.registry.DependenciesSatisfied(task.Name()) {
			continue
		}
		lastRun := r.registry.LastRun(task.Name())
		if !task.ShouldRun(lastRun, r.state) {
			continue
		}
		cost := task.EstimatedDuration()
		if spent+cost > budget {
			break
		}
		spent += cost
		r.dispatch(task)
	}
}

// dispatch launches task on a worker if one is free this tick; otherwise it
// is deferred to the next tick (no queueing beyond one generation).
func (r *Runner) dispatch(task compute.Task) {
	select {
	case r.sem <- struct{}{}:
		r.wg.Add(1)
		go r.runWorker(task)
	default:
		// no worker available; task remains a candidate next tick.
	}
}

// dispatchP0 dispatches a P0 task unthrottled by LoadLevel, waiting for a
// worker slot if every one is currently busy.
func (r *Runner) dispatchP0(task compute.Task) {
	r.sem <- struct{}{}
	r.wg.Add(1)
	go r.runWorker(task)
}

func (r *Runner) runWorker(task compute.Task) {
	defer r.wg.Done()
	defer func() { <-r.sem }()

	r.activeWorkers.Add(1)
	defer r.activeWorkers.Add(-1)

	snap, err := r.graph.Current()
	if errors.Is(err, graph.ErrUnavailable) {
		r.recordSkip(task, "graph snapshot unavailable")
		return
	}

	start := time.Now()
	result, taskErr := task.Execute(snap, r.state)
	duration := time.Since(start)

	if taskErr != nil {
		if taskErr.Kind == compute.KindLockPoisoned {
			r.state.Clear()
			log.Printf("scheduler: cleared poisoned KnowledgeState after task %s", task.Name())
		}
		r.registry.RecordFailure(task.Name(), taskErr)
		r.sink.RecordFailure(task.Name(), taskErr.Kind, taskErr.Reason, time.Now())
		if taskErr.Kind == compute.KindFailed {
			r.pub.Publish(events.TopicTaskFailed, map[string]any{
				"task": task.Name(), "reason": taskErr.Reason,
			})
		}
		return
	}

	r.latency.record(duration, task.EstimatedDuration())
	if ratio := r.latency.p99OverEstimateRatio(); ratio > 10 {
		log.Printf("scheduler: task %s p99 latency is %.1fx its estimate", task.Name(), ratio)
	}

	r.registry.RecordSuccess(task.Name(), time.Now(), result)
	r.sink.RecordSuccess(result, time.Now())
	r.pub.Publish(events.TopicTaskCompleted, map[string]any{
		"task": task.Name(), "items_processed": result.ItemsProcessed, "summary": result.Summary,
	})
}

func (r *Runner) recordSkip(task compute.Task, reason string) {
	r.registry.RecordFailure(task.Name(), compute.Skipped(reason))
	r.sink.RecordFailure(task.Name(), compute.KindSkipped, reason, time.Now())
}

// Shutdown signals draining: no further dispatches are accepted, and
// Shutdown waits for in-flight tasks up to cfg.ShutdownDrain before
// returning, logging a warning for whatever is still running past that
// deadline (tasks have no individual timeout; they must self-bound).
func (r *Runner) Shutdown(ctx context.Context) {
	r.draining.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	deadline := r.cfg.ShutdownDrain
	if deadline <= 0 {
		deadline = 30 * time.Second
	}

	select {
	case <-done:
	case <-time.After(deadline):
		log.Printf("scheduler: shutdown drain deadline (%s) exceeded, abandoning in-flight tasks", deadline)
	case <-ctx.Done():
	}
}
