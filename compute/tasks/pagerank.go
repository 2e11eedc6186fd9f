package tasks

import (
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// PageRank computes the standard damped random-walk PageRank over the
// current graph snapshot via power iteration.
type PageRank struct {
	Graph         *graph.Provider
	Interval      time.Duration
	Damping       float64 // default 0.85
	MaxIterations int     // default 50
	Tolerance     float64 // default 1e-6
}

// NewPageRank returns a PageRank task paced at interval with conventional
// defaults for damping, iteration cap, and convergence tolerance.
func NewPageRank(g *graph.Provider, interval time.Duration) *PageRank {
	return &PageRank{
		Graph:         g,
		Interval:      interval,
		Damping:       0.85,
		MaxIterations: 50,
		Tolerance:     1e-6,
	}
}

func (t *PageRank) Name() string                    { return "pagerank" }
func (t *PageRank) Priority() compute.Priority       { return compute.P1 }
func (t *PageRank) EstimatedDuration() time.Duration { return 2 * time.Second }

func (t *PageRank) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *PageRank) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}

	start := time.Now()
	ranks := pagerankDefault(snap, t.Damping, t.MaxIterations, t.Tolerance)

	if err := state.CommitDelta(knowledge.Delta{PageRank: ranks}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(ranks),
		Summary:        "computed pagerank",
	}, nil
}

// pagerankDefault runs power-iteration PageRank: each node starts at a
// uniform 1/N mass, then repeatedly redistributes (1-damping) uniformly plus
// damping proportional to in-links, until the L1 change between iterations
// drops below tolerance or maxIterations is reached. Dangling nodes (no
// outgoing edges) redistribute their mass uniformly, so the result remains a
// probability distribution (sums to ~1).
func pagerankDefault(snap *graph.Snapshot, damping float64, maxIterations int, tolerance float64) map[knowledge.NodeId]float64 {
	n := snap.NodeCount()
	if n == 0 {
		return map[knowledge.NodeId]float64{}
	}

	ids := make([]knowledge.NodeId, 0, n)
	for id := range snap.Nodes {
		ids = append(ids, id)
	}

	ranks := make(map[knowledge.NodeId]float64, n)
	init := 1.0 / float64(n)
	for _, id := range ids {
		ranks[id] = init
	}

	base := (1 - damping) / float64(n)

	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[knowledge.NodeId]float64, n)
		for _, id := range ids {
			next[id] = base
		}

		var danglingMass float64
		for _, id := range ids {
			outs := snap.Outgoing[id]
			if len(outs) == 0 {
				danglingMass += ranks[id]
				continue
			}
			share := damping * ranks[id] / float64(len(outs))
			for _, e := range outs {
				next[e.To] += share
			}
		}
		if danglingMass > 0 {
			redistribute := damping * danglingMass / float64(n)
			for _, id := range ids {
				next[id] += redistribute
			}
		}

		var delta float64
		for _, id := range ids {
			diff := next[id] - ranks[id]
			if diff < 0 {
				diff = -diff
			}
			delta += diff
		}
		ranks = next
		if delta < tolerance {
			break
		}
	}

	return ranks
}
