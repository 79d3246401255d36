package runner

import (
	"context"
	"fmt"
	"time"
)

// Status is the result class of one run attempt.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome describes what happened to one job in one invocation.
type Outcome struct {
	JobCode string
	Status  Status
	// Slot is the scheduled slot of the run; zero when skipped.
	Slot    time.Time
	EntryID string
	// Err holds the payload error of a failed run.
	Err error
	// Conflict is set when another tick already claimed the slot or holds
	// the job lock.
	Conflict bool
	Duration time.Duration
}

// Ran reports whether the payload was invoked.
func (o Outcome) Ran() bool {
	return o.Status == StatusSucceeded || o.Status == StatusFailed
}

// Observer is notified after every run attempt, including skips.
type Observer interface {
	RunCompleted(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

func (f ObserverFunc) RunCompleted(ctx context.Context, o Outcome) { f(ctx, o) }

// PersistenceError reports that the run log or lock backend failed. The
// affected job is abandoned for this tick.
type PersistenceError struct {
	Op      string
	JobCode string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.JobCode, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
