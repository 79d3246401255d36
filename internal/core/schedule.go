package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock (hour, minute) pair.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, NewConfigError("run_at_times", fmt.Sprintf("time %q is not in HH:MM form", s))
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, NewConfigError("run_at_times", fmt.Sprintf("time %q has a non-numeric hour", s))
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, NewConfigError("run_at_times", fmt.Sprintf("time %q has a non-numeric minute", s))
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.valid() {
		return TimeOfDay{}, NewConfigError("run_at_times", fmt.Sprintf("time %q is out of range", s))
	}
	return t, nil
}

// MustParseTimes parses a list of "HH:MM" strings and panics on error.
// Intended for package-level job tables.
func MustParseTimes(times ...string) []TimeOfDay {
	out := make([]TimeOfDay, 0, len(times))
	for _, s := range times {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			panic(err)
		}
		out = append(out, t)
	}
	return out
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ScheduleSpec is the mutable input to NewScheduleRule.
type ScheduleSpec struct {
	RunAtTimes            []TimeOfDay
	RunEveryMins          int
	RunOnDays             []int
	RunMonthlyOnDays      []int
	RetryAfterFailureMins int
	StrictInterval        bool
}

// ScheduleRule describes when a job recurs. The zero value is not usable;
// build one with NewScheduleRule.
type ScheduleRule struct {
	runAtTimes            []TimeOfDay
	runEveryMins          int
	runOnDays             []int
	runMonthlyOnDays      []int
	retryAfterFailureMins int
	strictInterval        bool
}

// NewScheduleRule validates spec and returns an immutable rule.
// Validation failures are returned as *ConfigError.
func NewScheduleRule(spec ScheduleSpec) (ScheduleRule, error) {
	hasTimes := len(spec.RunAtTimes) > 0
	hasInterval := spec.RunEveryMins != 0

	switch {
	case !hasTimes && !hasInterval:
		return ScheduleRule{}, NewConfigError("schedule", "one of run_at_times or run_every_mins is required")
	case hasTimes && hasInterval:
		return ScheduleRule{}, NewConfigError("schedule", "run_at_times and run_every_mins cannot be combined")
	case len(spec.RunOnDays) > 0 && len(spec.RunMonthlyOnDays) > 0:
		return ScheduleRule{}, NewConfigError("schedule", "run_on_days and run_monthly_on_days cannot be combined")
	}

	if spec.RunEveryMins < 0 {
		return ScheduleRule{}, NewConfigError("run_every_mins", "must be positive")
	}
	if spec.RetryAfterFailureMins < 0 {
		return ScheduleRule{}, NewConfigError("retry_after_failure_mins", "must be positive")
	}
	if spec.StrictInterval && !hasInterval {
		return ScheduleRule{}, NewConfigError("strict_interval", "requires run_every_mins")
	}

	times := make([]TimeOfDay, 0, len(spec.RunAtTimes))
	for _, t := range spec.RunAtTimes {
		if !t.valid() {
			return ScheduleRule{}, NewConfigError("run_at_times", fmt.Sprintf("time %s is out of range", t))
		}
		times = append(times, t)
	}
	slices.SortFunc(times, func(a, b TimeOfDay) int { return a.minutes() - b.minutes() })
	times = slices.Compact(times)

	weekdays, err := normalizeDays(spec.RunOnDays, "run_on_days", func(d int) bool { return d >= 0 && d <= 6 })
	if err != nil {
		return ScheduleRule{}, err
	}
	monthDays, err := normalizeDays(spec.RunMonthlyOnDays, "run_monthly_on_days", func(d int) bool {
		return d != 0 && d >= -31 && d <= 31
	})
	if err != nil {
		return ScheduleRule{}, err
	}

	return ScheduleRule{
		runAtTimes:            times,
		runEveryMins:          spec.RunEveryMins,
		runOnDays:             weekdays,
		runMonthlyOnDays:      monthDays,
		retryAfterFailureMins: spec.RetryAfterFailureMins,
		strictInterval:        spec.StrictInterval,
	}, nil
}

func normalizeDays(days []int, field string, ok func(int) bool) ([]int, error) {
	if len(days) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(days))
	for _, d := range days {
		if !ok(d) {
			return nil, NewConfigError(field, fmt.Sprintf("day %d is out of range", d))
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// RunAtTimes returns a copy of the configured times of day.
func (r ScheduleRule) RunAtTimes() []TimeOfDay { return slices.Clone(r.runAtTimes) }

// RunEveryMins returns the interval in minutes, or 0 when unset.
func (r ScheduleRule) RunEveryMins() int { return r.runEveryMins }

// RunOnDays returns a copy of the weekday filter (0 = Monday).
func (r ScheduleRule) RunOnDays() []int { return slices.Clone(r.runOnDays) }

// RunMonthlyOnDays returns a copy of the day-of-month filter.
func (r ScheduleRule) RunMonthlyOnDays() []int { return slices.Clone(r.runMonthlyOnDays) }

// RetryAfterFailureMins returns the retry delay in minutes, or 0 when unset.
func (r ScheduleRule) RetryAfterFailureMins() int { return r.retryAfterFailureMins }

// StrictInterval reports whether the interval must be strictly exceeded.
func (r ScheduleRule) StrictInterval() bool { return r.strictInterval }

// IsZero reports whether r was never built by NewScheduleRule.
func (r ScheduleRule) IsZero() bool {
	return len(r.runAtTimes) == 0 && r.runEveryMins == 0
}

// String renders the rule in a compact, human readable form.
func (r ScheduleRule) String() string {
	var parts []string
	if len(r.runAtTimes) > 0 {
		ts := make([]string, len(r.runAtTimes))
		for i, t := range r.runAtTimes {
			ts[i] = t.String()
		}
		parts = append(parts, "at "+strings.Join(ts, ","))
	}
	if r.runEveryMins > 0 {
		parts = append(parts, fmt.Sprintf("every %dm", r.runEveryMins))
	}
	if len(r.runOnDays) > 0 {
		parts = append(parts, "weekdays "+joinInts(r.runOnDays))
	}
	if len(r.runMonthlyOnDays) > 0 {
		parts = append(parts, "monthdays "+joinInts(r.runMonthlyOnDays))
	}
	if r.retryAfterFailureMins > 0 {
		parts = append(parts, fmt.Sprintf("retry %dm", r.retryAfterFailureMins))
	}
	return strings.Join(parts, " ")
}

func joinInts(vals []int) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}
