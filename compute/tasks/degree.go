// Package tasks holds the concrete ComputeTask implementations: PageRank,
// community detection, degree centrality, clustering, anomaly detection, and
// temporal pattern mining.
package tasks

import (
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// DegreeCentrality computes in/out/total degree for every node known to the
// current graph snapshot.
type DegreeCentrality struct {
	Graph    *graph.Provider
	Interval time.Duration
}

// NewDegreeCentrality returns a DegreeCentrality task paced at interval.
func NewDegreeCentrality(g *graph.Provider, interval time.Duration) *DegreeCentrality {
	return &DegreeCentrality{Graph: g, Interval: interval}
}

func (t *DegreeCentrality) Name() string                    { return "degree_centrality" }
func (t *DegreeCentrality) Priority() compute.Priority       { return compute.P2 }
func (t *DegreeCentrality) EstimatedDuration() time.Duration { return 1 * time.Second }

func (t *DegreeCentrality) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *DegreeCentrality) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}

	start := time.Now()
	degrees := make(map[knowledge.NodeId]knowledge.DegreeInfo, snap.NodeCount())
	for id := range snap.Nodes {
		in, out := snap.InDegree(id), snap.OutDegree(id)
		degrees[id] = knowledge.DegreeInfo{InDeg: in, OutDeg: out, Total: in + out}
	}

	if err := state.CommitDelta(knowledge.Delta{Degrees: degrees}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(degrees),
		Summary:        "computed degree centrality",
	}, nil
}

// elapsedAtLeast reports whether lastRun is nil (never run) or at least
// interval has elapsed since it. This is the "minimum gap" interval
// semantics analytics tasks use (§9 open question).
func elapsedAtLeast(lastRun *time.Time, interval time.Duration) bool {
	if lastRun == nil {
		return true
	}
	return time.Since(*lastRun) >= interval
}
