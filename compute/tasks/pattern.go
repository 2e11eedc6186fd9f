package tasks

import (
	"fmt"
	"sort"
	"time"

	"github.com/fluxforge/corescheduler/compute"
	"github.com/fluxforge/corescheduler/graph"
	"github.com/fluxforge/corescheduler/knowledge"
)

// PatternMining mines frequent two-step edge-type sequences (a lightweight
// PrefixSpan over each node's outgoing edge-type sequence, which stands in
// for temporal order since edges are recorded in observation order) and
// reports them as TemporalPatterns once their support clears minSupport.
type PatternMining struct {
	Graph      *graph.Provider
	Interval   time.Duration
	MinSupport float64 // fraction of nodes that must exhibit the sequence, default 0.02
}

// NewPatternMining returns a PatternMining task paced at interval.
func NewPatternMining(g *graph.Provider, interval time.Duration) *PatternMining {
	return &PatternMining{Graph: g, Interval: interval, MinSupport: 0.02}
}

func (t *PatternMining) Name() string                    { return "pattern_mining" }
func (t *PatternMining) Priority() compute.Priority       { return compute.P3 }
func (t *PatternMining) EstimatedDuration() time.Duration { return 5 * time.Second }

func (t *PatternMining) ShouldRun(lastRun *time.Time, _ *knowledge.State) bool {
	return elapsedAtLeast(lastRun, t.Interval)
}

func (t *PatternMining) Execute(snap *graph.Snapshot, state *knowledge.State) (compute.Result, *compute.TaskError) {
	if snap == nil {
		return compute.Result{}, compute.Skipped("graph snapshot unavailable")
	}
	if snap.NodeCount() == 0 {
		return compute.Result{}, compute.Skipped("empty graph snapshot")
	}

	start := time.Now()
	patterns := mineBigramPatterns(snap, t.MinSupport)

	if err := state.CommitDelta(knowledge.Delta{Patterns: patterns}); err != nil {
		return compute.Result{}, compute.LockPoisoned(err.Error())
	}

	return compute.Result{
		TaskName:       t.Name(),
		Duration:       time.Since(start),
		ItemsProcessed: len(patterns),
		Summary:        "mined temporal edge-type sequences",
	}, nil
}

type bigramKey struct {
	first, second graph.EdgeType
}

// mineBigramPatterns counts, per node, each adjacent pair of edge types in
// that node's outgoing edge list (in observed order), then keeps pairs whose
// support (fraction of nodes exhibiting them at least once) clears
// minSupport. avg_duration_secs is approximated as the average number of
// edges between the two pattern steps across all nodes exhibiting it, scaled
// to seconds by a nominal 60s-per-hop unit (no wall-clock timestamps are
// available at this layer — the segment store carries those).
func mineBigramPatterns(snap *graph.Snapshot, minSupport float64) []knowledge.TemporalPattern {
	total := snap.NodeCount()
	if total == 0 {
		return nil
	}

	memberCount := make(map[bigramKey]int)
	gapSum := make(map[bigramKey]int)

	for _, edges := range snap.Outgoing {
		seen := make(map[bigramKey]bool)
		for i := 0; i+1 < len(edges); i++ {
			key := bigramKey{first: edges[i].Type, second: edges[i+1].Type}
			if !seen[key] {
				seen[key] = true
				memberCount[key]++
				gapSum[key] += 1
			}
		}
	}

	var patterns []knowledge.TemporalPattern
	for key, count := range memberCount {
		support := float64(count) / float64(total)
		if support < minSupport {
			continue
		}
		avgGap := float64(gapSum[key]) / float64(count)
		patterns = append(patterns, knowledge.TemporalPattern{
			Support:        support,
			MemberCount:    count,
			AvgDurationSec: avgGap * 60,
			Category:       "sequence",
			Description:    fmt.Sprintf("%s followed by %s", key.first, key.second),
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Support != patterns[j].Support {
			return patterns[i].Support > patterns[j].Support
		}
		return patterns[i].Description < patterns[j].Description
	})

	return patterns
}
