package adapter

import (
	"testing"

	"github.com/fluxforge/corescheduler/knowledge"
	"github.com/fluxforge/corescheduler/metrics"
	"github.com/fluxforge/corescheduler/rules/schema"
)

func zscoreSpec(threshold float64) schema.AnomalySpec {
	return schema.AnomalySpec{
		Detection: schema.Composition{
			Leaf: &schema.Signal{Signal: schema.SignalZScore, Threshold: threshold},
		},
	}
}

func newStateWithAnomaly(id knowledge.NodeId, score float64) *knowledge.State {
	s := knowledge.New()
	_ = s.CommitDelta(knowledge.Delta{
		PageRank:  map[knowledge.NodeId]float64{id: 0.5},
		Anomalies: map[knowledge.NodeId]knowledge.AnomalyScore{id: knowledge.AnomalyScore(score)},
	})
	return s
}

func TestRuleTaskMatchesEntityAboveThreshold(t *testing.T) {
	state := newStateWithAnomaly(1, 4.0)
	task := NewRuleTask("r1", "High Z-Score", zscoreSpec(3.5), 0, nil, nil, nil, nil)

	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("expected 1 match, got %d", result.ItemsProcessed)
	}

	view := state.Read()
	defer view.Release()
	insights := view.Insights()
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight committed, got %d", len(insights))
	}
	if insights[0].Data["rule_id"] != "r1" {
		t.Errorf("expected insight tagged with rule_id r1, got %v", insights[0].Data["rule_id"])
	}
}

func TestRuleTaskDoesNotMatchBelowThreshold(t *testing.T) {
	state := newStateWithAnomaly(1, 1.0)
	task := NewRuleTask("r1", "High Z-Score", zscoreSpec(3.5), 0, nil, nil, nil, nil)

	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 0 {
		t.Fatalf("expected no matches, got %d", result.ItemsProcessed)
	}
}

func TestRuleTaskPriorityClampedToP1(t *testing.T) {
	task := NewRuleTask("r1", "x", zscoreSpec(1), -1, nil, nil, nil, nil)
	if task.Priority() != 1 {
		t.Errorf("expected priority clamped to P1, got %v", task.Priority())
	}
}

// hitsEnricher reports a fixed hit count for every query.
type hitsEnricher struct{ hits int }

func (h hitsEnricher) Hits(string) (int, error) { return h.hits, nil }

func TestEnrichmentHitBoundsRejectsOutOfRange(t *testing.T) {
	state := newStateWithAnomaly(1, 4.0)
	spec := zscoreSpec(3.5)
	minHits, maxHits := 5, 10
	spec.Enrichment = &schema.OpenSearchEnrichment{Query: "q", MinHits: &minHits, MaxHits: &maxHits}

	task := NewRuleTask("r1", "x", spec, 0, hitsEnricher{hits: 2}, NewEnrichmentLimiter(), nil, nil)
	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 0 {
		t.Fatalf("expected enrichment hit bounds to reject the match, got %d matches", result.ItemsProcessed)
	}
}

func TestEnrichmentHitBoundsAcceptsInRange(t *testing.T) {
	state := newStateWithAnomaly(1, 4.0)
	spec := zscoreSpec(3.5)
	minHits, maxHits := 1, 10
	spec.Enrichment = &schema.OpenSearchEnrichment{Query: "q", MinHits: &minHits, MaxHits: &maxHits}

	task := NewRuleTask("r1", "x", spec, 0, hitsEnricher{hits: 5}, NewEnrichmentLimiter(), nil, nil)
	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("expected enrichment hit bounds to accept the match, got %d matches", result.ItemsProcessed)
	}
}

// TestEnrichmentRateLimitSkipsRatherThanFails exhausts a rule's per-minute
// enrichment budget and confirms over-budget entities are silently skipped,
// not reported as a task failure.
func TestEnrichmentRateLimitSkipsRatherThanFails(t *testing.T) {
	state := knowledge.New()
	_ = state.CommitDelta(knowledge.Delta{
		PageRank: map[knowledge.NodeId]float64{1: 0.1, 2: 0.2, 3: 0.3},
		Anomalies: map[knowledge.NodeId]knowledge.AnomalyScore{
			1: 4.0, 2: 4.0, 3: 4.0,
		},
	})

	spec := zscoreSpec(3.5)
	minHits := 0
	spec.Enrichment = &schema.OpenSearchEnrichment{Query: "q", MinHits: &minHits, RateLimit: 1}

	limiter := NewEnrichmentLimiter()
	task := NewRuleTask("r1", "x", spec, 0, hitsEnricher{hits: 1}, limiter, nil, nil)

	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("expected rate-limited entities to be skipped, not a task failure: %v", taskErr)
	}
	if result.ItemsProcessed >= 3 {
		t.Errorf("expected the per-minute rate limit to cap matches below the full entity count, got %d", result.ItemsProcessed)
	}
}

func TestRuleTaskRecordsMatchesToMetricsSink(t *testing.T) {
	state := newStateWithAnomaly(1, 4.0)
	history := metrics.NewMemoryHistory(10)
	sink := metrics.NewSink(history)

	task := NewRuleTask("r1", "High Z-Score", zscoreSpec(3.5), 0, nil, nil, nil, sink)
	result, taskErr := task.Execute(nil, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("expected 1 match, got %d", result.ItemsProcessed)
	}

	matches := history.Matches()
	if len(matches) != 1 {
		t.Fatalf("expected the match to be recorded to the sink's history, got %d", len(matches))
	}
	if matches[0].RuleID != "r1" {
		t.Errorf("expected match recorded for rule r1, got %q", matches[0].RuleID)
	}
}

func TestEnrichmentLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewEnrichmentLimiter()
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("rule-a", 3) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected exactly 3 allowed within a burst of 3, got %d", allowed)
	}
}
