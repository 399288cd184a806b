// Package trigger implements the schedule calculator: a pure function
// from a cron expression and a starting point in time to the next N
// matching instants.
package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses and validates a standard 5-field cron
// expression. The catalog does not call it when a trigger is created,
// so an invalid stored expression surfaces here, when Upcoming is
// asked for that trigger's occurrences.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Upcoming returns the next n instants matching cronExpr, strictly
// after start, in ascending order. It is deterministic and performs no
// I/O. If the expression has no further matches it returns fewer than
// n elements instead of blocking or erroring — robfig/cron reports
// this as a zero time when nothing matches within five years (e.g.
// "0 0 30 2 *"), which ends the sequence early.
func Upcoming(start time.Time, n int, cronExpr string) ([]time.Time, error) {
	sched, err := ParseSchedule(cronExpr)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, n)
	next := start
	for i := 0; i < n; i++ {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		out = append(out, next)
	}
	return out, nil
}
