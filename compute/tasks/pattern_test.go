package tasks

import (
	"testing"

	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// fanoutSnapshot builds five nodes whose outgoing edges all exhibit the
// same "view" -> "purchase" bigram, plus one node with an unrelated
// sequence, so a minSupport of 0.5 keeps only the shared pattern.
func fanoutSnapshot() *graph.Snapshot {
	snap := graph.NewSnapshot()
	for id := graph.NodeId(1); id <= 5; id++ {
		snap.Nodes[id] = "seg-1"
		snap.Outgoing[id] = []graph.Edge{
			{To: 100, Type: "view"},
			{To: 101, Type: "purchase"},
		}
	}
	snap.Nodes[6] = "seg-1"
	snap.Outgoing[6] = []graph.Edge{
		{To: 102, Type: "refund"},
		{To: 103, Type: "cancel"},
	}
	return snap
}

func TestMineBigramPatternsKeepsPatternsAboveMinSupport(t *testing.T) {
	snap := fanoutSnapshot()
	patterns := mineBigramPatterns(snap, 0.5)

	if len(patterns) != 1 {
		t.Fatalf("expected exactly 1 pattern above 0.5 support, got %d", len(patterns))
	}
	p := patterns[0]
	if p.MemberCount != 5 {
		t.Errorf("expected member count 5, got %d", p.MemberCount)
	}
	if p.Description != "view followed by purchase" {
		t.Errorf("unexpected description: %q", p.Description)
	}
	wantSupport := 5.0 / 6.0
	if p.Support != wantSupport {
		t.Errorf("expected support %v, got %v", wantSupport, p.Support)
	}
}

func TestMineBigramPatternsDropsBelowMinSupport(t *testing.T) {
	snap := fanoutSnapshot()
	patterns := mineBigramPatterns(snap, 0.9)

	if len(patterns) != 0 {
		t.Fatalf("expected no patterns to clear 0.9 support, got %d", len(patterns))
	}
}

func TestMineBigramPatternsEmptySnapshotReturnsNil(t *testing.T) {
	patterns := mineBigramPatterns(graph.NewSnapshot(), 0.02)
	if patterns != nil {
		t.Errorf("expected nil patterns for an empty snapshot, got %v", patterns)
	}
}

func TestPatternMiningExecuteCommitsToKnowledgeState(t *testing.T) {
	snap := fanoutSnapshot()
	state := knowledge.New()
	task := NewPatternMining(nil, 0)
	task.MinSupport = 0.5

	result, taskErr := task.Execute(snap, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("expected 1 pattern committed, got %d", result.ItemsProcessed)
	}

	view := state.Read()
	defer view.Release()
	patterns := view.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern in state, got %d", len(patterns))
	}
}

func TestPatternMiningSkipsOnEmptySnapshot(t *testing.T) {
	task := NewPatternMining(nil, 0)
	_, taskErr := task.Execute(graph.NewSnapshot(), knowledge.New())
	if taskErr == nil {
		t.Fatal("expected a skip error for an empty graph snapshot")
	}
}

func TestPatternMiningSkipsOnNilSnapshot(t *testing.T) {
	task := NewPatternMining(nil, 0)
	_, taskErr := task.Execute(nil, knowledge.New())
	if taskErr == nil {
		t.Fatal("expected a skip error for a nil snapshot")
	}
}
