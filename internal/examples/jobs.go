// Package examples registers the demonstration jobs shipped with ojs-cron.
// Each job appends a line with its code and the current time to a file.
package examples

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openjobspec/ojs-cron/internal/core"
)

// Job codes.
const (
	RunAtTimeCode          = "cron.RunAtTimeCronJob"
	RunEveryTenMinutesCode = "cron.RunEveryTenMinutesCronJob"
	RunMonthlyCode         = "cron.RunMonthlyCronJob"
	RunWeeklyCode          = "cron.RunWeeklyCronJob"
)

// DefaultOutputFile is where the jobs write when no path is configured.
const DefaultOutputFile = "cron-demo.txt"

const dateLayout = "2006-01-02 15:04:05"

// fileMu serializes appends from jobs sharing an output file.
var fileMu sync.Mutex

// DateWriter appends "Code: <code>    Current date: <now>" to a file.
type DateWriter struct {
	Code string
	Path string
	Now  func() time.Time
}

// Run implements core.Payload.
func (w *DateWriter) Run(_ context.Context) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	line := fmt.Sprintf("Code: %s    Current date: %s\n", w.Code, now().Format(dateLayout))

	fileMu.Lock()
	defer fileMu.Unlock()

	f, err := os.OpenFile(w.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.Path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", w.Path, err)
	}
	return f.Close()
}

// Specs returns the schedule of every demonstration job keyed by code.
func Specs() map[string]core.ScheduleSpec {
	return map[string]core.ScheduleSpec{
		// Every day at 11:00 and 12:30.
		RunAtTimeCode: {
			RunAtTimes:            core.MustParseTimes("11:00", "12:30"),
			RetryAfterFailureMins: 1,
		},
		// Every 10 minutes.
		RunEveryTenMinutesCode: {
			RunEveryMins:   10,
			StrictInterval: true,
		},
		// Every 15 minutes on the 1st and 10th of the month.
		RunMonthlyCode: {
			RunMonthlyOnDays: []int{1, 10},
			RunEveryMins:     15,
		},
		// Mondays at 12:00 and 12:30.
		RunWeeklyCode: {
			RunOnDays:  []int{0},
			RunAtTimes: core.MustParseTimes("12:00", "12:30"),
		},
	}
}

// Codes lists the demonstration jobs in registration order.
func Codes() []string {
	return []string{RunAtTimeCode, RunEveryTenMinutesCode, RunMonthlyCode, RunWeeklyCode}
}

// Register adds the demonstration jobs to registry. They write to path using
// now as their clock; a nil now means time.Now.
func Register(registry *core.Registry, path string, now func() time.Time) error {
	if path == "" {
		path = DefaultOutputFile
	}
	specs := Specs()
	for _, code := range Codes() {
		payload := &DateWriter{Code: code, Path: path, Now: now}
		if err := registry.Add(code, specs[code], payload); err != nil {
			return err
		}
	}
	return nil
}
