// Package compute defines the ComputeTask contract every analytics task
// (PageRank, community detection, degree centrality, clustering, anomaly
// detection, pattern mining, and rule-derived tasks) implements, plus the
// registry that resolves their dependencies for the scheduler.
package compute

import (
	"fmt"
	"time"

	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// Priority is the urgency tier a task is registered at. P0 is immediate and
// never pace-limited (outside shutdown drain); P1-P3 are dispatched on
// scheduler ticks, subject to LoadLevel and each task's own ShouldRun pacing.
type Priority int

const (
	P0 Priority = iota
	P1
	P2
	P3
)

// String renders the priority the way metrics labels and logs expect.
func (p Priority) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "P?"
	}
}

// Result is what a task hands back to the scheduler on a successful run.
type Result struct {
	TaskName       string
	Duration       time.Duration
	ItemsProcessed int
	Summary        string
}

// ErrorKind tags the taxonomy of a task failure.
type ErrorKind int

const (
	// KindFailed is a retryable domain error; the task is eligible again the
	// next tick its should_run predicate allows.
	KindFailed ErrorKind = iota
	// KindSkipped is an expected, non-alertable skip (e.g. dependency not
	// satisfied, graph snapshot unavailable).
	KindSkipped
	// KindLockPoisoned means the KnowledgeState writer lock was poisoned by
	// a prior panic; the scheduler clears it and continues.
	KindLockPoisoned
)

// TaskError is the error type every ComputeTask.Execute may return.
type TaskError struct {
	Kind   ErrorKind
	Reason string
}

func (e *TaskError) Error() string {
	switch e.Kind {
	case KindSkipped:
		return fmt.Sprintf("skipped: %s", e.Reason)
	case KindLockPoisoned:
		return fmt.Sprintf("lock poisoned: %s", e.Reason)
	default:
		return fmt.Sprintf("failed: %s", e.Reason)
	}
}

// Failed builds a retryable TaskError.
func Failed(reason string) *TaskError { return &TaskError{Kind: KindFailed, Reason: reason} }

// Skipped builds a non-alertable TaskError.
func Skipped(reason string) *TaskError { return &TaskError{Kind: KindSkipped, Reason: reason} }

// LockPoisoned builds a lock-poisoned TaskError.
func LockPoisoned(reason string) *TaskError {
	return &TaskError{Kind: KindLockPoisoned, Reason: reason}
}

// Task is the uniform contract every compute task implements. Concrete
// tasks (PageRank, community detection, ...) are variants dispatched by
// name through the Registry; there is no shared base struct, only this
// interface.
type Task interface {
	// Name is a stable identifier used as a metric label and dependency key.
	Name() string
	// Priority is fixed at registration.
	Priority() Priority
	// EstimatedDuration is advisory; the runner uses it for admission-budget
	// accounting and for sorting candidates cheapest-first.
	EstimatedDuration() time.Duration
	// ShouldRun is a pure, cheap predicate. It must be idempotent: calling it
	// repeatedly with the same (lastRun, state) must return the same answer.
	ShouldRun(lastRun *time.Time, state *knowledge.State) bool
	// Execute may read the graph snapshot, does its work off the
	// KnowledgeState writer lock, and commits its results atomically at the
	// end via state.CommitDelta. It returns a TaskError on failure/skip.
	Execute(snapshot *graph.Snapshot, state *knowledge.State) (Result, *TaskError)
}
