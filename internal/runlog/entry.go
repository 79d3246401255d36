// Package runlog defines the append-only history of job runs and an
// in-memory store for it.
package runlog

import (
	"time"

	"github.com/openjobspec/ojs-cron/internal/core"
)

// Entry is one run of one job. It is created when the run starts and
// finalized once, when the payload returns.
type Entry struct {
	ID        string     `json:"id"`
	JobCode   string     `json:"job_code"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	IsSuccess *bool      `json:"is_success,omitempty"`
	// RanAtTime is the scheduled slot the run is attributed to.
	RanAtTime time.Time `json:"ran_at_time"`
	Message   string    `json:"message,omitempty"`
}

// NewEntry starts an entry for code at start, attributed to slot.
func NewEntry(code string, start, slot time.Time) *Entry {
	return &Entry{
		ID:        core.NewUUIDv7(),
		JobCode:   code,
		StartTime: start,
		RanAtTime: slot,
	}
}

// Finished reports whether the run has been finalized.
func (e *Entry) Finished() bool {
	return e.EndTime != nil && e.IsSuccess != nil
}

// Failed reports whether the run ended unsuccessfully or never ended.
func (e *Entry) Failed() bool {
	return !e.Finished() || !*e.IsSuccess
}

// Succeeded reports whether the run finished successfully.
func (e *Entry) Succeeded() bool {
	return e.Finished() && *e.IsSuccess
}

// LastRun converts e into the input of core.IsDue. A nil entry yields nil.
func (e *Entry) LastRun() *core.LastRun {
	if e == nil {
		return nil
	}
	return &core.LastRun{
		StartTime: e.StartTime,
		RanAtTime: e.RanAtTime,
		Failed:    e.Failed(),
	}
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.EndTime != nil {
		t := *e.EndTime
		c.EndTime = &t
	}
	if e.IsSuccess != nil {
		b := *e.IsSuccess
		c.IsSuccess = &b
	}
	return &c
}

// finalize sets the terminal fields on e.
func (e *Entry) finalize(end time.Time, success bool, message string) {
	e.EndTime = &end
	e.IsSuccess = &success
	e.Message = message
}
