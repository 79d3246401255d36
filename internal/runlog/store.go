package runlog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntryNotFound is returned by Finalize for an unknown entry.
	ErrEntryNotFound = errors.New("run log entry not found")

	// ErrAlreadyFinalized is returned when an entry is finalized twice.
	ErrAlreadyFinalized = errors.New("run log entry already finalized")
)

// Store persists run-log entries.
//
// InsertIfAbsent must be atomic and keyed on (JobCode, RanAtTime): of two
// concurrent inserts for the same slot exactly one returns true.
type Store interface {
	// FindLatest returns the most recently started entry for code, or nil.
	FindLatest(ctx context.Context, code string) (*Entry, error)
	// FindLatestSuccess returns the most recently started entry for code that
	// finished successfully, or nil.
	FindLatestSuccess(ctx context.Context, code string) (*Entry, error)
	InsertIfAbsent(ctx context.Context, e *Entry) (bool, error)
	Finalize(ctx context.Context, id string, end time.Time, success bool, message string) error
	// List returns up to limit entries for code, newest first. A limit of 0
	// or less means no limit.
	List(ctx context.Context, code string, limit int) ([]*Entry, error)
}

// Latest picks the most recently started entry, breaking ties on RanAtTime.
func Latest(entries []*Entry) *Entry {
	var best *Entry
	for _, e := range entries {
		if best == nil || newer(e, best) {
			best = e
		}
	}
	return best
}

// LatestSuccess is Latest restricted to successful entries.
func LatestSuccess(entries []*Entry) *Entry {
	var best *Entry
	for _, e := range entries {
		if e.Succeeded() && (best == nil || newer(e, best)) {
			best = e
		}
	}
	return best
}

func newer(a, b *Entry) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.RanAtTime.After(b.RanAtTime)
}
