package tasks

import (
	"math"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// AnomalyDetection scores each node by how far its PageRank deviates (in
// standard deviations) from its own community's mean PageRank. It depends on
// CommunityDetection and PageRank having both completed since the current
// graph snapshot — the registry's dependency graph enforces that ordering,
// not this task.
type AnomalyDetection struct {
	Graph    *graph.Provider
	Interval time.Duration
}

// NewAnomalyDetection returns an AnomalyDetection task paced at interval.
func NewAnomalyDetection(g *graph.Provider, interval time.Duration) *AnomalyDetection {
	return &AnomalyDetection{Graph: g, Interval: interval}
}

func (t *AnomalyDetection) Name() string                    { return "anomaly_detection" }
func (t *AnomalyDetection) Priority() compute.Priority       { return compute.P2 }
func (t *AnomalyDetection) EstimatedDuration() time.Duration { return 1500 * time.Millisecond }

func (t *AnomalyDetection) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *AnomalyDetection) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}

	view := state.Read()
	if view.PageRankSize() == 0 || view.CommunitiesSize() == 0 {
		view.Release()
		return compute.Result{}, compute.Skipped("pagerank/communities not yet computed this cycle")
	}

	ids := view.AllNodeIDs()
	byCommunity := make(map[knowledge.CommunityId][]float64)
	nodeCommunity := make(map[knowledge.NodeId]knowledge.CommunityId, len(ids))
	nodeRank := make(map[knowledge.NodeId]float64, len(ids))
	for _, id := range ids {
		comm, ok := view.Community(id)
		if !ok {
			continue
		}
		pr, _ := view.PageRank(id)
		byCommunity[comm] = append(byCommunity[comm], pr)
		nodeCommunity[id] = comm
		nodeRank[id] = pr
	}
	view.Release()

	start := time.Now()
	stats := make(map[knowledge.CommunityId]meanStdDev, len(byCommunity))
	for comm, ranks := range byCommunity {
		stats[comm] = meanAndStdDev(ranks)
	}

	anomalies := make(map[knowledge.NodeId]knowledge.AnomalyScore, len(nodeCommunity))
	for id, comm := range nodeCommunity {
		ms := stats[comm]
		score := 0.0
		if ms.stddev > 0 {
			score = math.Abs(nodeRank[id]-ms.mean) / ms.stddev
		}
		anomalies[id] = knowledge.AnomalyScore(score)
	}

	if err := state.CommitDelta(knowledge.Delta{Anomalies: anomalies}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(anomalies),
		Summary:        "scored per-community pagerank deviation",
	}, nil
}

type meanStdDev struct {
	mean   float64
	stddev float64
}

func meanAndStdDev(values []float64) meanStdDev {
	if len(values) == 0 {
		return meanStdDev{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return meanStdDev{mean: mean, stddev: math.Sqrt(variance)}
}
