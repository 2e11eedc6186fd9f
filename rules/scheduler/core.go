package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/fluxforge/corescheduler/rules/cron"
	"github.com/fluxforge/corescheduler/rules/loader"
	"github.com/fluxforge/corescheduler/rules/schema"
)

// CooldownStore optionally persists last_triggered beyond process restarts.
// The in-memory map on RuleScheduler remains authoritative for every
// invariant in the testable-properties section; a CooldownStore is a
// best-effort cache layered on top, consulted when an entry is first created
// for a rule not already scheduled in memory, and updated alongside every
// MarkTriggered call.
type CooldownStore interface {
	Get(ruleID string) (time.Time, bool)
	Set(ruleID string, at time.Time)
}

// RuleScheduler keeps rule_id -> RuleScheduleEntry and answers which rules
// are due at a given instant.
type RuleScheduler struct {
	mu       sync.Mutex
	entries  map[string]*RuleScheduleEntry
	cooldown CooldownStore
}

// NewRuleScheduler returns an empty RuleScheduler. cooldown may be nil, in
// which case last_triggered lives only in memory and is rebuilt empty on
// restart, per the Non-goal on persistent state.
func NewRuleScheduler(cooldown CooldownStore) *RuleScheduler {
	return &RuleScheduler{entries: make(map[string]*RuleScheduleEntry), cooldown: cooldown}
}

// ApplyLoadResult rebuilds the schedule from a fresh directory load:
// new rules get new entries, rules no longer present are removed, and
// rules that persist keep their existing last_triggered. Invalid rules
// (schedule/timezone validation failures) are dropped with a log line —
// they do not poison the rest of the reload.
func (s *RuleScheduler) ApplyLoadResult(result loader.LoadResult) {
	next := make(map[string]*RuleScheduleEntry, len(result.Loaded))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range result.Loaded {
		if doc.Doc.Kind != schema.KindAnomalyRule {
			continue
		}
		entry, err := buildEntry(doc.Doc)
		if err != nil {
			log.Printf("rules: scheduler rejected %s: %v", doc.Doc.Metadata.ID, err)
			continue
		}
		if existing, ok := s.entries[entry.RuleID]; ok {
			entry.LastTriggered = existing.LastTriggered
		} else if s.cooldown != nil {
			if at, ok := s.cooldown.Get(entry.RuleID); ok {
				entry.LastTriggered = &at
			}
		}
		next[entry.RuleID] = entry
	}

	s.entries = next
}

func buildEntry(doc schema.RuleDocument) (*RuleScheduleEntry, error) {
	spec, err := doc.DecodeAnomalySpec()
	if err != nil {
		return nil, err
	}
	sched, err := cron.Parse(spec.Schedule.Cron)
	if err != nil {
		return nil, err
	}
	loc, err := cron.LoadLocation(spec.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	cooldown, err := cron.ParseCooldown(spec.Schedule.Cooldown)
	if err != nil {
		return nil, err
	}
	return &RuleScheduleEntry{
		RuleID:   doc.Metadata.ID,
		Schedule: sched,
		Location: loc,
		Cooldown: cooldown,
		Enabled:  doc.Metadata.IsEnabled(),
	}, nil
}

// DueNow returns the rule_ids due at now, per §4.8. Concurrent triggers of
// the same rule within one tick are coalesced to one because the caller
// evaluates this once per tick and MarkTriggered is called at most once per
// dispatched rule task.
func (s *RuleScheduler) DueNow(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for id, entry := range s.entries {
		if entry.DueNow(now) {
			due = append(due, id)
		}
	}
	return due
}

// MarkTriggered records that ruleID fired at when.
func (s *RuleScheduler) MarkTriggered(ruleID string, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ruleID]
	if !ok {
		return
	}
	at := when
	entry.LastTriggered = &at
	if s.cooldown != nil {
		s.cooldown.Set(ruleID, when)
	}
}

// Entry returns a copy of ruleID's current schedule entry, for inspection.
func (s *RuleScheduler) Entry(ruleID string) (RuleScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ruleID]
	if !ok {
		return RuleScheduleEntry{}, false
	}
	return *entry, true
}
