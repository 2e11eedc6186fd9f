package tasks

import (
	"testing"

	"github.com/fluxforge/corescheduler/knowledge"
)

func TestClusteringSkipsWithoutPriorPageRankOrDegree(t *testing.T) {
	snap := newChainBuilder().edge(1, 2).snapshot()
	task := NewClustering(nil, 0, 2)

	_, taskErr := task.Execute(snap, knowledge.New())
	if taskErr == nil {
		t.Fatal("expected a skip error when no pagerank/degree has been computed yet")
	}
}

func TestClusteringGroupsSimilarFeatureVectors(t *testing.T) {
	snap := newChainBuilder().edge(1, 2).edge(3, 4).snapshot()
	state := knowledge.New()
	_ = state.CommitDelta(knowledge.Delta{
		PageRank: map[knowledge.NodeId]float64{1: 0.1, 2: 0.1, 3: 0.9, 4: 0.9},
		Degrees: map[knowledge.NodeId]knowledge.DegreeInfo{
			1: {Total: 1}, 2: {Total: 1}, 3: {Total: 10}, 4: {Total: 10},
		},
	})

	task := NewClustering(nil, 0, 2)
	result, taskErr := task.Execute(snap, state)
	if taskErr != nil {
		t.Fatalf("unexpected error: %v", taskErr)
	}
	if result.ItemsProcessed != 4 {
		t.Fatalf("expected 4 nodes clustered, got %d", result.ItemsProcessed)
	}

	view := state.Read()
	defer view.Release()
	c1, _ := view.Cluster(1)
	c2, _ := view.Cluster(2)
	c3, _ := view.Cluster(3)
	c4, _ := view.Cluster(4)

	if c1 != c2 {
		t.Error("expected nodes 1 and 2 (similar features) in the same cluster")
	}
	if c3 != c4 {
		t.Error("expected nodes 3 and 4 (similar features) in the same cluster")
	}
	if c1 == c3 {
		t.Error("expected the two dissimilar feature groups in different clusters")
	}
}
