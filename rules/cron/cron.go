// Package cron normalizes and evaluates the 6-field (seconds-first) cron
// expressions rule schedules use, wrapping robfig/cron/v3's parser.
package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed, normalized cron expression ready to test against a
// point in time.
type Schedule struct {
	expr     string
	schedule cron.Schedule
}

// Parse normalizes expr to 6 fields (prepending "0" seconds if only 5 were
// given) and parses it. An invalid expression is rejected here, not at
// evaluation time.
func Parse(expr string) (Schedule, error) {
	normalized := Normalize(expr)
	sched, err := parser.Parse(normalized)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	return Schedule{expr: normalized, schedule: sched}, nil
}

// Normalize prepends a "0" seconds field to a standard 5-field expression;
// a 6-field expression (or a descriptor like "@hourly") is returned as-is.
func Normalize(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return expr
	}
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}

// Matches reports whether now (evaluated in loc) is a scheduled instant:
// the first scheduled time after the preceding second equals now's
// second-truncated value, i.e. that second itself is an activation instant.
func (s Schedule) Matches(now time.Time, loc *time.Location) bool {
	local := now.In(loc).Truncate(time.Second)
	prevSecond := local.Add(-time.Second)
	next := s.schedule.Next(prevSecond)
	return next.Equal(local)
}

// LoadLocation validates an IANA timezone string, failing the rule at load
// per §4.8 rather than at evaluation time.
func LoadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("cron: unknown IANA timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ParseCooldown parses a Go duration string ("10m", "1h30m"); an empty
// string means "no cooldown".
func ParseCooldown(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("cron: invalid cooldown %q: %w", s, err)
	}
	return d, nil
}
