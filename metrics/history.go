package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryResult is a completed compute task execution recorded for audit.
type HistoryResult struct {
	TaskName       string
	At             time.Time
	Duration       time.Duration
	ItemsProcessed int
	Summary        string
	Outcome        string // success, failed, skipped
}

// HistoryMatch is a rule match recorded for audit.
type HistoryMatch struct {
	RuleID  string
	At      time.Time
	Summary string
}

// History is the Metrics Sink's optional durable audit trail. It is never
// read back to resume scheduling — the task queue itself stays volatile;
// History exists purely for later analysis.
type History interface {
	RecordResult(HistoryResult)
	RecordMatch(HistoryMatch)
}

// MemoryHistory is the default History: a fixed-capacity ring buffer per
// record kind, oldest entries dropped first.
type MemoryHistory struct {
	mu      sync.Mutex
	cap     int
	results []HistoryResult
	matches []HistoryMatch
}

// NewMemoryHistory returns a MemoryHistory bounded at capacity entries per
// record kind (default 4096 if capacity <= 0).
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryHistory{cap: capacity}
}

func (h *MemoryHistory) RecordResult(r HistoryResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	if over := len(h.results) - h.cap; over > 0 {
		h.results = h.results[over:]
	}
}

func (h *MemoryHistory) RecordMatch(m HistoryMatch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.matches = append(h.matches, m)
	if over := len(h.matches) - h.cap; over > 0 {
		h.matches = h.matches[over:]
	}
}

// Results returns a copy of the currently retained results, oldest first.
func (h *MemoryHistory) Results() []HistoryResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryResult, len(h.results))
	copy(out, h.results)
	return out
}

// Matches returns a copy of the currently retained matches, oldest first.
func (h *MemoryHistory) Matches() []HistoryMatch {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryMatch, len(h.matches))
	copy(out, h.matches)
	return out
}

// PostgresHistory persists results and matches to Postgres via pgx, for
// deployments that want the audit trail to survive process restarts. Writes
// are best-effort: a failed insert is dropped rather than blocking the
// scheduler, since History is never authoritative.
type PostgresHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresHistory connects to connString and assumes the
// task_result_history / rule_match_history tables already exist (migration
// is an operator concern, outside this package).
func NewPostgresHistory(ctx context.Context, connString string) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresHistory{pool: pool}, nil
}

// Close releases the connection pool.
func (h *PostgresHistory) Close() {
	h.pool.Close()
}

func (h *PostgresHistory) RecordResult(r HistoryResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = h.pool.Exec(ctx, `
		INSERT INTO task_result_history (task_name, occurred_at, duration_ms, items_processed, summary, outcome)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.TaskName, r.At, r.Duration.Milliseconds(), r.ItemsProcessed, r.Summary, r.Outcome)
}

func (h *PostgresHistory) RecordMatch(m HistoryMatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = h.pool.Exec(ctx, `
		INSERT INTO rule_match_history (rule_id, occurred_at, summary)
		VALUES ($1, $2, $3)
	`, m.RuleID, m.At, m.Summary)
}
