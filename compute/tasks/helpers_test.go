package tasks

import "github.com/fluxforge/corescheduler/graph"

// chainBuilder assembles small undirected-looking test snapshots by adding
// a directed edge plus its reverse-lookup Incoming entry, the shape
// labelPropagationDefault and the clustering feature builder both expect.
type chainBuilder struct {
	snap *graph.Snapshot
}

func newChainBuilder() *chainBuilder {
	return &chainBuilder{snap: graph.NewSnapshot()}
}

func (b *chainBuilder) edge(from, to graph.NodeId) *chainBuilder {
	b.snap.Nodes[from] = "seg-1"
	b.snap.Nodes[to] = "seg-1"
	b.snap.Outgoing[from] = append(b.snap.Outgoing[from], graph.Edge{To: to, Type: "links_to"})
	b.snap.Incoming[to] = append(b.snap.Incoming[to], graph.Edge{To: from, Type: "links_to"})
	return b
}

func (b *chainBuilder) snapshot() *graph.Snapshot {
	return b.snap
}
