package knowledge

import "github.com/fluxforge/corescheduler/graph"

// ClusterId identifies a cluster produced by the clustering task.
type ClusterId uint64

// CommunityId identifies a community produced by community detection.
type CommunityId uint64

// ClusterInfo carries the centroid and size of a single cluster.
type ClusterInfo struct {
	Centroid    []float64
	MemberCount int
}

// DegreeInfo carries in/out/total degree for a single node.
type DegreeInfo struct {
	InDeg  int
	OutDeg int
	Total  int
}

// AnomalyScore is a non-negative anomaly score for a node.
type AnomalyScore float64

// TemporalPattern describes a mined sequence of co-occurring behavior.
type TemporalPattern struct {
	Support        float64
	MemberCount    int
	AvgDurationSec float64
	Category       string
	Description    string
}

// EntityType tags the kind of entity a cooccurrence axis refers to.
type EntityType string

// CooccurrenceKey identifies one (row type, column type) sparse matrix.
type CooccurrenceKey struct {
	Row EntityType
	Col EntityType
}

// SparseEntry is a single non-zero cell of a SparseMatrix.
type SparseEntry struct {
	Row   uint64
	Col   uint64
	Value float64
}

// SparseMatrix is a row/col sparse matrix of co-occurrence counts.
type SparseMatrix struct {
	Rows, Cols int
	Entries    []SparseEntry
}

// TrendDirection tags whether a metric's trend is rising, falling, or flat.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// Trend describes how a named metric has moved relative to its baseline.
type Trend struct {
	Current   float64
	Baseline  float64
	Direction TrendDirection
	Magnitude float64
}

// Insight is a single proactive finding surfaced to downstream consumers.
type Insight struct {
	CreatedAtUnixNano int64
	Source            string
	Summary           string
	Data              map[string]any
}

// NodeId is re-exported for callers that only import knowledge.
type NodeId = graph.NodeId
