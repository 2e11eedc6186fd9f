// Package adapter implements the Rule→Task Adapter (§4.10): it wraps a due
// rule as a transient ComputeTask whose Execute evaluates the rule's
// detection composition against KnowledgeState, applies enrichment hit
// bounds, and emits a match.
package adapter

import (
	"fmt"

	"github.com/fluxforge/corescheduler/knowledge"
	"github.com/fluxforge/corescheduler/rules/schema"
)

// Features is the per-entity signal surface the composition tree reads.
// Each field is already computed by the analytics tasks this repository's
// compute package runs; the adapter never recomputes anything itself.
type Features struct {
	// ZScore is the node's community-relative pagerank z-score (the
	// AnomalyDetection task's own output).
	ZScore float64
	// NoiseScore approximates DBSCAN-style noise as the inverse of the
	// node's cluster membership count (a cluster of size 1 is maximally
	// "noisy").
	NoiseScore float64
	// Trends is a metric-name -> magnitude map. FeaturesFor leaves it empty;
	// behavioral_deviation signals read trends through Evaluate's
	// trendLookup instead.
	Trends map[string]float64
}

// FeaturesFor builds Features for id from the current KnowledgeState view.
func FeaturesFor(view *knowledge.View, id knowledge.NodeId) Features {
	f := Features{Trends: make(map[string]float64)}

	if score, ok := view.Anomaly(id); ok {
		f.ZScore = float64(score)
	}

	if clusterID, ok := view.Cluster(id); ok {
		if info, ok := view.ClusterInfo(clusterID); ok && info.MemberCount > 0 {
			f.NoiseScore = 1.0 / float64(info.MemberCount)
		}
	}

	return f
}

// Evaluate walks the composition tree and returns whether it's satisfied
// for f. trendLookup resolves a named metric (for behavioral_deviation
// signals) against the live KnowledgeState trends.
func Evaluate(c schema.Composition, f Features, trendLookup func(metric string) (knowledge.Trend, bool)) (bool, error) {
	if c.IsLeaf() {
		return evaluateSignal(*c.Leaf, f, trendLookup)
	}

	switch c.Operator {
	case schema.OperatorAnd:
		for _, child := range c.Children {
			ok, err := Evaluate(child, f, trendLookup)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case schema.OperatorOr:
		for _, child := range c.Children {
			ok, err := Evaluate(child, f, trendLookup)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case schema.OperatorNot:
		if len(c.Children) != 1 {
			return false, fmt.Errorf("adapter: 'not' requires exactly one child, got %d", len(c.Children))
		}
		ok, err := Evaluate(c.Children[0], f, trendLookup)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("adapter: unknown composition operator %q", c.Operator)
	}
}

func evaluateSignal(sig schema.Signal, f Features, trendLookup func(metric string) (knowledge.Trend, bool)) (bool, error) {
	switch sig.Signal {
	case schema.SignalZScore, schema.SignalGraphAnomaly:
		return f.ZScore >= sig.Threshold, nil
	case schema.SignalDbscanNoise:
		return f.NoiseScore >= sig.Threshold, nil
	case schema.SignalBehavioralDeviation:
		if sig.Feature == "" {
			return false, fmt.Errorf("adapter: behavioral_deviation signal requires a feature name")
		}
		trend, ok := trendLookup(sig.Feature)
		if !ok {
			return false, nil
		}
		return trend.Magnitude >= sig.Threshold, nil
	default:
		return false, fmt.Errorf("adapter: unknown signal %q", sig.Signal)
	}
}
