package core

import (
	"slices"
	"time"
)

// LastRun is the part of a run-log entry the due calculation looks at.
type LastRun struct {
	StartTime time.Time
	RanAtTime time.Time
	// Failed is true for runs that finished unsuccessfully or never finished.
	Failed bool
}

// IsDue reports whether a job with rule r should run at now. last is the most
// recently started run of any status and lastSuccess the most recently started
// successful one; either is nil when no such run exists. When due, slot is the
// logical scheduled time the run is attributed to.
//
// A failed last run only matters to the retry delay. Without one, the
// schedule keeps counting from lastSuccess, so a failure never postpones the
// next attempt.
//
// IsDue never reads the clock; all calendar arithmetic uses now's location.
func IsDue(r ScheduleRule, last, lastSuccess *LastRun, now time.Time) (slot time.Time, due bool) {
	if !r.dayAllowed(now) {
		return time.Time{}, false
	}

	// A failed run with a retry delay suspends the normal schedule until the
	// delay has elapsed.
	if last != nil && last.Failed && r.retryAfterFailureMins > 0 {
		if now.Sub(last.StartTime) >= minutes(r.retryAfterFailureMins) {
			return TruncateMinute(now), true
		}
		return time.Time{}, false
	}

	if len(r.runAtTimes) > 0 {
		return r.dueAtTime(last, lastSuccess, now)
	}
	return r.dueInterval(lastSuccess, now)
}

// dueAtTime matches now against the configured times. A slot already claimed
// by any run, failed or not, is not due again.
func (r ScheduleRule) dueAtTime(last, lastSuccess *LastRun, now time.Time) (time.Time, bool) {
	for _, t := range r.runAtTimes {
		if now.Hour() != t.Hour || now.Minute() != t.Minute {
			continue
		}
		slot := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
		if claimed(last, slot) || claimed(lastSuccess, slot) {
			return time.Time{}, false
		}
		return slot, true
	}
	return time.Time{}, false
}

func claimed(run *LastRun, slot time.Time) bool {
	return run != nil && run.RanAtTime.Equal(slot)
}

// dueInterval measures the gap from the last successful run.
func (r ScheduleRule) dueInterval(lastSuccess *LastRun, now time.Time) (time.Time, bool) {
	slot := TruncateMinute(now)
	if lastSuccess == nil {
		return slot, true
	}
	elapsed := now.Sub(lastSuccess.RanAtTime)
	gap := minutes(r.runEveryMins)
	if r.strictInterval {
		if elapsed > gap {
			return slot, true
		}
		return time.Time{}, false
	}
	if elapsed >= gap {
		return slot, true
	}
	return time.Time{}, false
}

func (r ScheduleRule) dayAllowed(now time.Time) bool {
	if len(r.runOnDays) > 0 && !slices.Contains(r.runOnDays, Weekday(now)) {
		return false
	}
	if len(r.runMonthlyOnDays) > 0 {
		last := daysIn(now)
		for _, d := range r.runMonthlyOnDays {
			if resolveMonthDay(d, last) == now.Day() {
				return true
			}
		}
		return false
	}
	return true
}

// Weekday returns t's weekday numbered from Monday = 0 to Sunday = 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// resolveMonthDay maps a configured day of month onto a month with last days.
// Negative values count back from the end: -1 is the last day.
// Days beyond the month's length never match.
func resolveMonthDay(d, last int) int {
	if d < 0 {
		d = last + 1 + d
		if d < 1 {
			return 0
		}
		return d
	}
	if d > last {
		return 0
	}
	return d
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// TruncateMinute drops seconds and below from t, keeping its location.
func TruncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
