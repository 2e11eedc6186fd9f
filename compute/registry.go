package compute

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// CycleError reports a cycle discovered while registering task dependencies.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("compute: circular dependency: %v", e.Path)
}

// taskEntry is everything the registry tracks about one registered task.
type taskEntry struct {
	task       Task
	deps       []string
	lastRun    *time.Time
	lastResult Result
	lastErr    *TaskError
	// completedSinceSnapshot records whether this task has completed
	// successfully at least once since the graph snapshot last changed; this
	// is what dependency satisfaction checks against (§4.4).
	completedSinceSnapshot bool
}

// Registry holds every registered task and the static dependency mapping
// between them. Tasks are registered once at startup, except rule-derived
// tasks, which the rule dispatch loop in main adds and removes as rules
// come due.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*taskEntry
	// order preserves registration order for deterministic iteration when
	// estimated_duration/name don't otherwise distinguish tasks.
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*taskEntry)}
}

// Register adds a task with the given dependency set (task names that must
// have completed successfully since the last graph snapshot change before
// this task is eligible to run). Register rejects a registration that would
// introduce a cycle in the dependency graph, or a duplicate task name.
func (r *Registry) Register(task Task, deps ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := task.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("compute: task %q already registered", name)
	}

	r.entries[name] = &taskEntry{task: task, deps: deps}
	r.order = append(r.order, name)

	if path, ok := r.findCycle(); ok {
		delete(r.entries, name)
		r.order = r.order[:len(r.order)-1]
		return &CycleError{Path: path}
	}
	return nil
}

// Unregister removes a task by name (the rule dispatch loop uses it to
// replace a rule-derived task with a fresh one-shot instance).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// findCycle runs a DFS over the dependency graph looking for a cycle.
// Caller must hold r.mu.
func (r *Registry) findCycle() ([]string, bool) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.entries))
	var path []string

	var visit func(name string) ([]string, bool)
	visit = func(name string) ([]string, bool) {
		switch state[name] {
		case done:
			return nil, false
		case visiting:
			// Found the cycle; path currently holds the chain back to name.
			cyclePath := append(append([]string{}, path...), name)
			return cyclePath, true
		}
		state[name] = visiting
		path = append(path, name)
		entry, ok := r.entries[name]
		if ok {
			for _, dep := range entry.deps {
				if cyclePath, found := visit(dep); found {
					return cyclePath, true
				}
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil, false
	}

	for _, name := range r.order {
		if state[name] == unvisited {
			if cyclePath, found := visit(name); found {
				return cyclePath, true
			}
		}
	}
	return nil, false
}

// DependenciesSatisfied reports whether every dependency of name has
// completed successfully since the last graph snapshot change.
func (r *Registry) DependenciesSatisfied(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return false
	}
	for _, dep := range entry.deps {
		depEntry, ok := r.entries[dep]
		if !ok || !depEntry.completedSinceSnapshot {
			return false
		}
	}
	return true
}

// CandidatesFor returns every registered task at the given priority, sorted
// deterministically by (estimated_duration ascending, name ascending) as
// required by the dispatch algorithm (§4.6 step 4).
func (r *Registry) CandidatesFor(p Priority) []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Task
	for _, name := range r.order {
		entry := r.entries[name]
		if entry.task.Priority() == p {
			out = append(out, entry.task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].EstimatedDuration(), out[j].EstimatedDuration()
		if di != dj {
			return di < dj
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// LastRun returns the last recorded run time for name, if any.
func (r *Registry) LastRun(name string) *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil
	}
	return entry.lastRun
}

// RecordSuccess stamps a task's last-run time and marks it completed since
// the current graph snapshot, for dependency satisfaction purposes.
func (r *Registry) RecordSuccess(name string, at time.Time, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return
	}
	entry.lastRun = &at
	entry.lastResult = result
	entry.lastErr = nil
	entry.completedSinceSnapshot = true
}

// RecordFailure stamps a task's last error without marking it completed.
func (r *Registry) RecordFailure(name string, err *TaskError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return
	}
	entry.lastErr = err
}

// ResetSnapshotCompletion clears "completed since snapshot" for every task;
// called whenever the graph snapshot changes, so dependency checks require
// a fresh run against the new graph.
func (r *Registry) ResetSnapshotCompletion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		entry.completedSinceSnapshot = false
	}
}

// Status is the per-task snapshot the (external, out of scope) control-plane
// /status endpoint would serve.
type Status struct {
	Name         string
	Priority     Priority
	LastRun      *time.Time
	LastDuration time.Duration
	LastResult   string
	LastError    string
}

// AllStatus returns a Status for every registered task, the contract the
// (out of scope) control-plane status() call is built on.
func (r *Registry) AllStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.entries))
	for _, name := range r.order {
		entry := r.entries[name]
		st := Status{
			Name:         name,
			Priority:     entry.task.Priority(),
			LastRun:      entry.lastRun,
			LastDuration: entry.lastResult.Duration,
			LastResult:   entry.lastResult.Summary,
		}
		if entry.lastErr != nil {
			st.LastError = entry.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// Get returns the task registered under name, if any.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.task, true
}
