package tasks

import (
	"testing"

	"github.com/fluxforge/corescheduler/knowledge"
)

func TestDegreeCentralityCountsInAndOut(t *testing.T) {
	snap := newChainBuilder().edge(1, 2).edge(1, 3).edge(2, 3).snapshot()
	task := NewDegreeCentrality(nil, 0)
	state := knowledge.New()

	result, taskErr := task.Execute(snap, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 3 {
		t.Fatalf("expected 3 nodes, got %d", result.ItemsProcessed)
	}

	view := state.Read()
	defer view.Release()

	deg1, _ := view.Degree(1)
	if deg1.OutDeg != 2 || deg1.InDeg != 0 {
		t.Errorf("expected node 1 out=2 in=0, got out=%d in=%d", deg1.OutDeg, deg1.InDeg)
	}
	deg3, _ := view.Degree(3)
	if deg3.InDeg != 2 || deg3.OutDeg != 0 {
		t.Errorf("expected node 3 in=2 out=0, got in=%d out=%d", deg3.InDeg, deg3.OutDeg)
	}
	if deg3.Total != deg3.InDeg+deg3.OutDeg {
		t.Error("expected Total to equal InDeg+OutDeg")
	}
}

func TestDegreeCentralitySkipsOnNilSnapshot(t *testing.T) {
	task := NewDegreeCentrality(nil, 0)
	_, taskErr := task.Execute(nil, knowledge.New())
	if taskErr == nil {
		t.Fatal("expected a skip error for a nil snapshot")
	}
}
