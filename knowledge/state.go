// Package knowledge holds the single shared KnowledgeState: the
// materialized output of every compute task, readable by many and written
// by one task at a time.
package knowledge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLockPoisoned is returned by CommitDelta when a previous writer panicked
// while holding the write lock and the state has not yet been cleared by the
// scheduler.
var ErrLockPoisoned = errors.New("knowledge: writer lock poisoned")

// DefaultInsightsCapacity is the default bound on the insights FIFO.
const DefaultInsightsCapacity = 1024

// State is the single-writer, many-reader container described by the
// KnowledgeState data model. All fields are protected by mu; callers never
// touch the maps directly — they go through Read (for consistent read
// snapshots) or CommitDelta (for atomic, all-or-nothing writes).
type State struct {
	mu sync.RWMutex

	clusters     map[NodeId]ClusterId
	clusterInfo  map[ClusterId]ClusterInfo
	communities  map[NodeId]CommunityId
	pagerank     map[NodeId]float64
	degrees      map[NodeId]DegreeInfo
	anomalies    map[NodeId]AnomalyScore
	patterns     []TemporalPattern
	cooccurrence map[CooccurrenceKey]SparseMatrix
	trends       map[string]Trend
	insights     []Insight
	insightsCap  int

	poisoned atomic.Bool
}

// New returns an empty KnowledgeState, ready to accept writes.
func New() *State {
	return &State{
		clusters:     make(map[NodeId]ClusterId),
		clusterInfo:  make(map[ClusterId]ClusterInfo),
		communities:  make(map[NodeId]CommunityId),
		pagerank:     make(map[NodeId]float64),
		degrees:      make(map[NodeId]DegreeInfo),
		anomalies:    make(map[NodeId]AnomalyScore),
		cooccurrence: make(map[CooccurrenceKey]SparseMatrix),
		trends:       make(map[string]Trend),
		insightsCap:  DefaultInsightsCapacity,
	}
}

// Delta is the set of fields a single task wants to commit. A task prepares
// its Delta off-lock (computing everything it needs) and hands it to
// CommitDelta, which applies every non-nil field under one writer-lock
// critical section. Leaving a field nil means "this task didn't touch it".
type Delta struct {
	// Clusters/ClusterInfo replace the full maps when set (clustering is a
	// from-scratch recomputation each run). RetainOrphanClusters, if true,
	// keeps cluster_info entries with no member in the new Clusters map
	// (config-controlled exception to the no-orphan-clusters invariant).
	Clusters              map[NodeId]ClusterId
	ClusterInfo           map[ClusterId]ClusterInfo
	RetainOrphanClusters  bool
	Communities           map[NodeId]CommunityId
	PageRank              map[NodeId]float64
	Degrees               map[NodeId]DegreeInfo
	Anomalies             map[NodeId]AnomalyScore
	Patterns              []TemporalPattern
	Cooccurrence          map[CooccurrenceKey]SparseMatrix
	Trends                map[string]Trend
	Insights              []Insight
}

// IsZero reports whether the delta carries no writes at all.
func (d Delta) IsZero() bool {
	return d.Clusters == nil && d.ClusterInfo == nil && d.Communities == nil &&
		d.PageRank == nil && d.Degrees == nil && d.Anomalies == nil &&
		d.Patterns == nil && d.Cooccurrence == nil && d.Trends == nil && len(d.Insights) == 0
}

// CommitDelta applies delta atomically under the writer lock. Between
// consecutive commits touching the same field, the order observed is the
// order in which callers acquired the writer lock (Go's sync.RWMutex is not
// strictly FIFO, but writers never starve here because the critical section
// is O(delta size), not O(graph size) — tasks compute off-lock). A panic
// during the critical section poisons the state; CommitDelta returns
// ErrLockPoisoned for every call until Clear is invoked by the scheduler.
func (s *State) CommitDelta(d Delta) (err error) {
	if s.poisoned.Load() {
		return ErrLockPoisoned
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.poisoned.Store(true)
			err = ErrLockPoisoned
		}
	}()

	if d.Clusters != nil {
		s.clusters = d.Clusters
	}
	if d.ClusterInfo != nil {
		if d.RetainOrphanClusters {
			s.clusterInfo = d.ClusterInfo
		} else {
			s.clusterInfo = pruneOrphanClusters(d.ClusterInfo, s.clusters)
		}
	}
	if d.Communities != nil {
		s.communities = d.Communities
	}
	if d.PageRank != nil {
		s.pagerank = d.PageRank
	}
	if d.Degrees != nil {
		s.degrees = d.Degrees
	}
	if d.Anomalies != nil {
		s.anomalies = d.Anomalies
	}
	if d.Patterns != nil {
		s.patterns = d.Patterns
	}
	if d.Cooccurrence != nil {
		if s.cooccurrence == nil {
			s.cooccurrence = make(map[CooccurrenceKey]SparseMatrix, len(d.Cooccurrence))
		}
		for k, v := range d.Cooccurrence {
			s.cooccurrence[k] = v
		}
	}
	if d.Trends != nil {
		if s.trends == nil {
			s.trends = make(map[string]Trend, len(d.Trends))
		}
		for k, v := range d.Trends {
			s.trends[k] = v
		}
	}
	for _, insight := range d.Insights {
		s.pushInsight(insight)
	}
	return nil
}

func pruneOrphanClusters(info map[ClusterId]ClusterInfo, clusters map[NodeId]ClusterId) map[ClusterId]ClusterInfo {
	referenced := make(map[ClusterId]struct{}, len(clusters))
	for _, c := range clusters {
		referenced[c] = struct{}{}
	}
	pruned := make(map[ClusterId]ClusterInfo, len(info))
	for id, ci := range info {
		if _, ok := referenced[id]; ok {
			pruned[id] = ci
		}
	}
	return pruned
}

func (s *State) pushInsight(i Insight) {
	if i.CreatedAtUnixNano == 0 {
		i.CreatedAtUnixNano = time.Now().UnixNano()
	}
	s.insights = append(s.insights, i)
	cap := s.insightsCap
	if cap <= 0 {
		cap = DefaultInsightsCapacity
	}
	if over := len(s.insights) - cap; over > 0 {
		s.insights = s.insights[over:]
	}
}

// SetInsightsCapacity overrides the default FIFO bound on insights.
func (s *State) SetInsightsCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insightsCap = n
}

// Clear resets the poisoned flag after the scheduler has observed and logged
// a LockPoisoned error, allowing execution to continue.
func (s *State) Clear() {
	s.poisoned.Store(false)
}

// Poisoned reports whether the writer lock is currently poisoned.
func (s *State) Poisoned() bool {
	return s.poisoned.Load()
}
