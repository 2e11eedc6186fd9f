package tasks

import (
	"sort"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// CommunityDetection assigns every node a community via asynchronous label
// propagation: each node adopts the most common label among its neighbors,
// iterated until labels stop changing or a cap is hit.
type CommunityDetection struct {
	Graph         *graph.Provider
	Interval      time.Duration
	MaxIterations int // default 20
}

// NewCommunityDetection returns a CommunityDetection task paced at interval.
func NewCommunityDetection(g *graph.Provider, interval time.Duration) *CommunityDetection {
	return &CommunityDetection{Graph: g, Interval: interval, MaxIterations: 20}
}

func (t *CommunityDetection) Name() string                    { return "community_detection" }
func (t *CommunityDetection) Priority() compute.Priority       { return compute.P1 }
func (t *CommunityDetection) EstimatedDuration() time.Duration { return 2 * time.Second }

func (t *CommunityDetection) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *CommunityDetection) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}

	start := time.Now()
	communities := labelPropagationDefault(snap, t.MaxIterations)

	if err := state.CommitDelta(knowledge.Delta{Communities: communities}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(communities),
		Summary:        "detected communities via label propagation",
	}, nil
}

// labelPropagationDefault seeds every node with its own id as its label,
// then repeatedly assigns each node the most frequent label among its
// undirected neighbors (ties broken by smallest label, for determinism),
// stopping early once no node's label changes.
func labelPropagationDefault(snap *graph.Snapshot, maxIterations int) map[knowledge.NodeId]knowledge.CommunityId {
	ids := make([]knowledge.NodeId, 0, snap.NodeCount())
	for id := range snap.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	labels := make(map[knowledge.NodeId]knowledge.CommunityId, len(ids))
	for _, id := range ids {
		labels[id] = knowledge.CommunityId(id)
	}

	neighborsOf := func(id knowledge.NodeId) []knowledge.NodeId {
		var out []knowledge.NodeId
		for _, e := range snap.Outgoing[id] {
			out = append(out, e.To)
		}
		for _, e := range snap.Incoming[id] {
			out = append(out, e.To)
		}
		return out
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, id := range ids {
			neighbors := neighborsOf(id)
			if len(neighbors) == 0 {
				continue
			}
			counts := make(map[knowledge.CommunityId]int, len(neighbors))
			for _, nb := range neighbors {
				counts[labels[nb]]++
			}
			best, bestCount := labels[id], -1
			for label, count := range counts {
				if count > bestCount || (count == bestCount && label < best) {
					best, bestCount = label, count
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return labels
}
