package adapter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/events"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
	"github.com/fluxforge/corescheduler/metrics"
	"github.com/fluxforge/corescheduler/rules/schema"
)

// Enricher looks up how many hits an enrichment query matches. The real
// OpenSearch-backed implementation is an external collaborator, out of
// scope here; NoopEnricher stands in when no enrichment backend is wired.
type Enricher interface {
	Hits(query string) (int, error)
}

// NoopEnricher reports zero hits for every query.
type NoopEnricher struct{}

func (NoopEnricher) Hits(string) (int, error) { return 0, nil }

// EnrichmentLimiter rate-limits enrichment lookups per rule id (§4.14),
// adapted from the scheduler's own per-key token bucket pattern.
type EnrichmentLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewEnrichmentLimiter returns a limiter with no buckets yet; each rule id
// gets its own bucket lazily, sized at perMinute/60 tokens per second with
// a burst of perMinute (so the full per-minute budget can be spent at once
// rather than trickling out strictly one-per-second).
func NewEnrichmentLimiter() *EnrichmentLimiter {
	return &EnrichmentLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether ruleID may spend one enrichment lookup now, given
// its configured per-minute budget.
func (l *EnrichmentLimiter) Allow(ruleID string, perMinute int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ruleID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		l.limiters[ruleID] = limiter
	}
	return limiter.Allow()
}

// RuleMatch is the event emitted when a rule's composition (and, if
// present, its enrichment hit bounds) is satisfied for an entity.
type RuleMatch struct {
	EntityID    knowledge.NodeId `json:"entity_id"`
	EntityType  string           `json:"entity_type,omitempty"`
	Score       float64          `json:"score"`
	MatchedRule string           `json:"rule_id"`
	Reason      string           `json:"matched_reason"`
}

// RuleTask wraps one due rule as a ComputeTask (§4.10). It never writes to
// graph-derived KnowledgeState fields — only insights and, via the
// publisher, the external match event.
type RuleTask struct {
	RuleID    string
	RuleName  string
	Spec      schema.AnomalySpec
	Enricher  Enricher
	Limiter   *EnrichmentLimiter
	Publisher events.Publisher
	Sink      *metrics.Sink
	// priority is clamped to at least P1 (configurable per rule, capped
	// so it cannot exceed P1's urgency).
	priority compute.Priority
}

// NewRuleTask builds a RuleTask at the given priority, clamped to P1 if a
// caller asked for P0 (rule tasks never get P0 urgency). sink may be nil, in
// which case matches are published but not recorded to the Metrics Sink.
func NewRuleTask(ruleID, ruleName string, spec schema.AnomalySpec, priority compute.Priority, enricher Enricher, limiter *EnrichmentLimiter, pub events.Publisher, sink *metrics.Sink) *RuleTask {
	if priority < compute.P1 {
		priority = compute.P1
	}
	if enricher == nil {
		enricher = NoopEnricher{}
	}
	return &RuleTask{
		RuleID: ruleID, RuleName: ruleName, Spec: spec,
		Enricher: enricher, Limiter: limiter, Publisher: pub, Sink: sink, priority: priority,
	}
}

func (t *RuleTask) Name() string                    { return "rule:" + t.RuleID }
func (t *RuleTask) Priority() compute.Priority       { return t.priority }
func (t *RuleTask) EstimatedDuration() time.Duration { return 500 * time.Millisecond }

// ShouldRun reports true only the first time: due-ness is decided once by
// the Rule Scheduler before the adapter constructs this task, and the task
// is meant to fire exactly once per dispatch, not on every following tick.
func (t *RuleTask) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return lastRun == nil
}

// Execute evaluates the rule's detection composition against every known
// entity, applies enrichment hit bounds when configured, and appends a
// RuleMatch insight plus a published event for each pass.
func (t *RuleTask) Execute(_ *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	start := time.Now()
	view := state.Read()
	ids := view.AllNodeIDs()

	var insights []knowledge.Insight
	matched := 0

	for _, id := range ids {
		features := FeaturesFor(view, id)
		ok, err := Evaluate(t.Spec.Detection, features, view.Trend)
		if err != nil {
			view.Release()
			return compute.Result{}, compute.Failed(err.Error())
		}
		if !ok {
			continue
		}

		if t.Spec.Enrichment != nil {
			if t.Limiter != nil && !t.Limiter.Allow(t.RuleID, t.Spec.Enrichment.EffectiveRateLimit()) {
				continue // over budget this tick; treated as skip, not failure
			}
			hits, err := t.Enricher.Hits(t.Spec.Enrichment.Query)
			if err != nil {
				continue
			}
			if !t.Spec.Enrichment.EvaluateHitBounds(hits) {
				continue
			}
		}

		match := RuleMatch{
			EntityID:    id,
			Score:       features.ZScore,
			MatchedRule: t.RuleID,
			Reason:      "detection composition satisfied",
		}
		insights = append(insights, knowledge.Insight{
			Source:  t.Name(),
			Summary: t.RuleName + " matched entity",
			Data: map[string]any{
				"entity_id": uint64(match.EntityID),
				"rule_id":   match.MatchedRule,
				"score":     match.Score,
			},
		})
		if t.Publisher != nil {
			t.Publisher.Publish(events.TopicRuleMatch, match)
		}
		if t.Sink != nil {
			t.Sink.RecordRuleMatch(t.RuleID, time.Now(), match.Reason)
		}
		matched++
	}
	view.Release()

	if len(insights) > 0 {
		if err := state.CommitDelta(knowledge.Delta{Insights: insights}); err != nil {
			return compute.Result{}, compute.LockPoisoned(err.Error())
		}
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: matched,
		Summary:        "evaluated rule detection composition",
	}, nil
}
