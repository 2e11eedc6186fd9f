package tasks

import "testing"

// twoClusterSnapshot returns two disconnected triangles: {1,2,3} and {4,5,6}.
func twoClusterSnapshot() *chainBuilder {
	b := newChainBuilder()
	b.edge(1, 2)
	b.edge(2, 3)
	b.edge(3, 1)
	b.edge(4, 5)
	b.edge(5, 6)
	b.edge(6, 4)
	return b
}

func TestLabelPropagationSeparatesDisconnectedTriangles(t *testing.T) {
	snap := twoClusterSnapshot().snapshot()
	labels := labelPropagationDefault(snap, 20)

	if labels[1] != labels[2] || labels[2] != labels[3] {
		t.Errorf("expected nodes 1,2,3 in the same community, got %v %v %v", labels[1], labels[2], labels[3])
	}
	if labels[4] != labels[5] || labels[5] != labels[6] {
		t.Errorf("expected nodes 4,5,6 in the same community, got %v %v %v", labels[4], labels[5], labels[6])
	}
	if labels[1] == labels[4] {
		t.Error("expected the two disconnected triangles to land in different communities")
	}
}

func TestLabelPropagationIsDeterministic(t *testing.T) {
	snap := twoClusterSnapshot().snapshot()
	first := labelPropagationDefault(snap, 20)
	second := labelPropagationDefault(snap, 20)

	for id, label := range first {
		if second[id] != label {
			t.Errorf("expected deterministic labels, node %v got %v then %v", id, label, second[id])
		}
	}
}
