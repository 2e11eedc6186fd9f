package tasks

import (
	"math"
	"sort"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// Clustering groups nodes into K clusters via k-means over a lightweight
// per-node feature vector (PageRank, total degree), depending on PageRank
// and DegreeCentrality having already populated those fields this cycle.
type Clustering struct {
	Graph    *graph.Provider
	Interval time.Duration
	K        int // number of clusters, default 8
	MaxIters int // default 25
}

// NewClustering returns a Clustering task paced at interval with k clusters.
func NewClustering(g *graph.Provider, interval time.Duration, k int) *Clustering {
	if k <= 0 {
		k = 8
	}
	return &Clustering{Graph: g, Interval: interval, K: k, MaxIters: 25}
}

func (t *Clustering) Name() string                    { return "clustering" }
func (t *Clustering) Priority() compute.Priority       { return compute.P2 }
func (t *Clustering) EstimatedDuration() time.Duration { return 3 * time.Second }

func (t *Clustering) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *Clustering) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}

	view := state.Read()
	ids := view.AllNodeIDs()
	features := make(map[knowledge.NodeId][]float64, len(ids))
	for _, id := range ids {
		pr, _ := view.PageRank(id)
		deg, _ := view.Degree(id)
		features[id] = []float64{pr, float64(deg.Total)}
	}
	view.Release()

	if len(features) == 0 {
		return compute.Result{}, compute.Skipped("no nodes with pagerank/degree yet")
	}

	start := time.Now()
	assignments, centroids := kmeans(features, t.K, t.MaxIters)

	clusters := make(map[knowledge.NodeId]knowledge.ClusterId, len(assignments))
	memberCounts := make(map[knowledge.ClusterId]int, len(centroids))
	for id, c := range assignments {
		cid := knowledge.ClusterId(c)
		clusters[id] = cid
		memberCounts[cid]++
	}

	info := make(map[knowledge.ClusterId]knowledge.ClusterInfo, len(centroids))
	for c, centroid := range centroids {
		cid := knowledge.ClusterId(c)
		info[cid] = knowledge.ClusterInfo{Centroid: centroid, MemberCount: memberCounts[cid]}
	}

	if err := state.CommitDelta(knowledge.Delta{Clusters: clusters, ClusterInfo: info}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(clusters),
		Summary:        "clustered nodes via k-means",
	}, nil
}

// kmeans runs Lloyd's algorithm with deterministic seeding (sorted node ids,
// evenly spaced) so repeated runs against unchanged input are reproducible.
func kmeans(features map[knowledge.NodeId][]float64, k int, maxIters int) (map[knowledge.NodeId]int, map[int][]float64) {
	ids := make([]knowledge.NodeId, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if k > len(ids) {
		k = len(ids)
	}
	if k <= 0 {
		return map[knowledge.NodeId]int{}, map[int][]float64{}
	}

	centroids := make([][]float64, k)
	step := len(ids) / k
	if step == 0 {
		step = 1
	}
	for c := 0; c < k; c++ {
		idx := c * step
		if idx >= len(ids) {
			idx = len(ids) - 1
		}
		centroids[c] = append([]float64{}, features[ids[idx]]...)
	}

	assignments := make(map[knowledge.NodeId]int, len(ids))

	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for _, id := range ids {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := squaredDistance(features[id], centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if cur, ok := assignments[id]; !ok || cur != best {
				assignments[id] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, len(centroids[c]))
		}
		for _, id := range ids {
			c := assignments[id]
			counts[c]++
			for i, v := range features[id] {
				sums[c][i] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for i := range centroids[c] {
				centroids[c][i] = sums[c][i] / float64(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	centroidMap := make(map[int][]float64, k)
	for c, centroid := range centroids {
		centroidMap[c] = centroid
	}
	return assignments, centroidMap
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
