// Package metrics is the scheduler's Metrics Sink: per-task Prometheus
// counters/gauges/histograms plus an optional durable history of completed
// results and rule matches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/load"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corescheduler_task_executions_total",
		Help: "Total compute task executions by result",
	}, []string{"task", "result"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corescheduler_task_duration_seconds",
		Help:    "Compute task execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	taskItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corescheduler_task_items_processed_total",
		Help: "Total items processed by a compute task",
	}, []string{"task"})

	taskLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "corescheduler_task_last_success_timestamp_seconds",
		Help: "Unix timestamp of a task's last successful completion",
	}, []string{"task"})

	workerBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corescheduler_worker_busy",
		Help: "Number of workers currently executing a task",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corescheduler_queue_depth",
		Help: "Number of admitted tasks awaiting a worker this tick",
	})

	loadLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corescheduler_load_level",
		Help: "Current LoadLevel (0=Low, 1=Normal, 2=High, 3=Critical)",
	})

	knowledgeStateSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corescheduler_knowledge_state_size",
		Help: "Approximate element count across every KnowledgeState field",
	})

	ruleMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corescheduler_rule_matches_total",
		Help: "Total rule matches emitted",
	}, []string{"rule_id"})
)

// Sink is the Metrics Sink: it records Prometheus series and, when a
// History is configured, mirrors completed results/matches into it.
type Sink struct {
	history History
}

// NewSink returns a Sink with history as its durable backend (may be nil,
// in which case only the in-memory Prometheus series are recorded).
func NewSink(history History) *Sink {
	return &Sink{history: history}
}

// RecordSuccess records a successful task execution.
func (s *Sink) RecordSuccess(result compute.Result, at time.Time) {
	tasksTotal.WithLabelValues(result.TaskName, "success").Inc()
	taskDuration.WithLabelValues(result.TaskName).Observe(result.Duration.Seconds())
	taskItemsProcessed.WithLabelValues(result.TaskName).Add(float64(result.ItemsProcessed))
	taskLastSuccess.WithLabelValues(result.TaskName).Set(float64(at.Unix()))

	if s.history != nil {
		s.history.RecordResult(HistoryResult{
			TaskName:       result.TaskName,
			At:             at,
			Duration:       result.Duration,
			ItemsProcessed: result.ItemsProcessed,
			Summary:        result.Summary,
			Outcome:        "success",
		})
	}
}

// RecordFailure records a failed or skipped task execution.
func (s *Sink) RecordFailure(taskName string, kind compute.ErrorKind, reason string, at time.Time) {
	label := "failed"
	if kind == compute.KindSkipped {
		label = "skipped"
	}
	tasksTotal.WithLabelValues(taskName, label).Inc()

	if s.history != nil {
		s.history.RecordResult(HistoryResult{
			TaskName: taskName,
			At:       at,
			Summary:  reason,
			Outcome:  label,
		})
	}
}

// RecordRuleMatch records a rule match event.
func (s *Sink) RecordRuleMatch(ruleID string, at time.Time, summary string) {
	ruleMatches.WithLabelValues(ruleID).Inc()
	if s.history != nil {
		s.history.RecordMatch(HistoryMatch{RuleID: ruleID, At: at, Summary: summary})
	}
}

// SetAggregate records the tick-level aggregate gauges (§4.7).
func (s *Sink) SetAggregate(workersBusy, queued int, level load.Level, stateSize int) {
	workerBusy.Set(float64(workersBusy))
	queueDepth.Set(float64(queued))
	loadLevel.Set(float64(level))
	knowledgeStateSize.Set(float64(stateSize))
}
