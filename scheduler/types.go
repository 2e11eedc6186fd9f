// Package scheduler is the Scheduler Runner: the main loop that dispatches
// P0 tasks immediately and paces P1-P3 tasks by LoadLevel and dependency
// satisfaction.
package scheduler

import "time"

// Config owns the runner's tunables (§4.6): worker cap, tick interval, and
// per-priority minimum pacing interval.
type Config struct {
	// WorkerCap is W, the number of tasks that may run concurrently.
	WorkerCap int
	// TickInterval is T, how often the runner evaluates P1-P3 dispatch.
	TickInterval time.Duration
	// MinInterval is I_p: the minimum time between runs of a task at a given
	// priority, keyed by priority label (P1, P2, P3). ShouldRun already
	// encodes each task's own pacing, so this is advisory context the
	// runner's callers may use when constructing tasks; the runner itself
	// defers entirely to Task.ShouldRun.
	MinInterval map[string]time.Duration
	// ShutdownDrain is the hard deadline for in-flight tasks to finish once
	// draining begins (D_shutdown).
	ShutdownDrain time.Duration
}

// DefaultConfig returns the runner's production defaults (§4.6).
func DefaultConfig() Config {
	return Config{
		WorkerCap:    4,
		TickInterval: time.Second,
		MinInterval: map[string]time.Duration{
			"P1": 30 * time.Second,
			"P2": 120 * time.Second,
			"P3": 600 * time.Second,
		},
		ShutdownDrain: 30 * time.Second,
	}
}

// admissionBudget returns B(LoadLevel): the per-tick ceiling on summed
// estimated_duration of newly admitted P1-P3 tasks.
func admissionBudget(level int, tick time.Duration) time.Duration {
	switch level {
	case 0: // Low
		return time.Duration(1<<62 - 1) // effectively unbounded
	case 1: // Normal
		return 8 * tick
	case 2: // High
		return 2 * tick
	default: // Critical: P1-P3 are skipped entirely by the caller
		return 0
	}
}
