package metrics

import (
	"testing"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/load"
)

func TestSinkRecordSuccessMirrorsToHistory(t *testing.T) {
	h := NewMemoryHistory(10)
	sink := NewSink(h)

	sink.RecordSuccess(compute.Result{
		TaskName:       "pagerank",
		ItemsProcessed: 5,
		Summary:        "ranked 5 nodes",
	}, time.Unix(1700000000, 0))

	results := h.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(results))
	}
	if results[0].Outcome != "success" || results[0].TaskName != "pagerank" {
		t.Errorf("unexpected history entry: %+v", results[0])
	}
}

func TestSinkRecordFailureLabelsSkippedSeparatelyFromFailed(t *testing.T) {
	h := NewMemoryHistory(10)
	sink := NewSink(h)

	sink.RecordFailure("clustering", compute.KindSkipped, "no prior pagerank", time.Unix(1700000000, 0))
	sink.RecordFailure("anomaly_detection", compute.KindLockPoisoned, "state lock poisoned", time.Unix(1700000001, 0))

	results := h.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(results))
	}
	if results[0].Outcome != "skipped" {
		t.Errorf("expected skipped outcome, got %q", results[0].Outcome)
	}
	if results[1].Outcome != "failed" {
		t.Errorf("expected failed outcome, got %q", results[1].Outcome)
	}
}

func TestSinkRecordRuleMatchMirrorsToHistory(t *testing.T) {
	h := NewMemoryHistory(10)
	sink := NewSink(h)

	sink.RecordRuleMatch("rule-42", time.Unix(1700000000, 0), "threshold exceeded")

	matches := h.Matches()
	if len(matches) != 1 || matches[0].RuleID != "rule-42" {
		t.Fatalf("expected 1 match for rule-42, got %+v", matches)
	}
}

func TestSinkWithNilHistoryDoesNotPanic(t *testing.T) {
	sink := NewSink(nil)
	sink.RecordSuccess(compute.Result{TaskName: "pagerank"}, time.Unix(1700000000, 0))
	sink.RecordFailure("pagerank", compute.KindFailed, "boom", time.Unix(1700000000, 0))
	sink.RecordRuleMatch("rule-1", time.Unix(1700000000, 0), "x")
	sink.SetAggregate(2, 5, load.Normal, 10)
}
