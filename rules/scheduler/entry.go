// Package scheduler is the Rule Scheduler (§4.8): per-rule cron, timezone,
// and cooldown, exposing the set of rules due at a given instant.
package scheduler

import (
	"time"

	"github.com/fluxforge/corescheduler/rules/cron"
)

// RuleScheduleEntry is everything the Rule Scheduler tracks for one rule.
type RuleScheduleEntry struct {
	RuleID        string
	Schedule      cron.Schedule
	Location      *time.Location
	Cooldown      time.Duration
	LastTriggered *time.Time
	Enabled       bool
}

// DueNow reports whether this entry should trigger at now, per §4.8: the
// rule is enabled, the cron matches in its own timezone, and its cooldown
// (if any) has elapsed since it last triggered.
func (e RuleScheduleEntry) DueNow(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	if !e.Schedule.Matches(now, e.Location) {
		return false
	}
	if e.LastTriggered == nil {
		return true
	}
	return now.Sub(*e.LastTriggered) >= e.Cooldown
}
