// Package runlogtest holds behavioural tests shared by every runlog.Store
// implementation.
package runlogtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openjobspec/ojs-cron/internal/runlog"
)

// Run exercises store semantics against stores built by newStore. Each
// subtest receives a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) runlog.Store) {
	t.Helper()

	base := time.Date(2022, 10, 10, 12, 0, 0, 0, time.UTC)

	t.Run("FindLatestEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.FindLatest(context.Background(), "job.none")
		if err != nil {
			t.Fatalf("FindLatest() error = %v", err)
		}
		if got != nil {
			t.Fatalf("FindLatest() = %+v, want nil", got)
		}
	})

	t.Run("InsertThenFindLatest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := runlog.NewEntry("job.a", base, base)
		second := runlog.NewEntry("job.a", base.Add(10*time.Minute), base.Add(10*time.Minute))
		other := runlog.NewEntry("job.b", base.Add(time.Hour), base.Add(time.Hour))
		for _, e := range []*runlog.Entry{first, second, other} {
			ok, err := s.InsertIfAbsent(ctx, e)
			if err != nil || !ok {
				t.Fatalf("InsertIfAbsent(%s) = (%v, %v), want (true, nil)", e.ID, ok, err)
			}
		}

		got, err := s.FindLatest(ctx, "job.a")
		if err != nil {
			t.Fatalf("FindLatest() error = %v", err)
		}
		if got == nil || got.ID != second.ID {
			t.Fatalf("FindLatest() = %+v, want entry %s", got, second.ID)
		}
		if !got.RanAtTime.Equal(second.RanAtTime) {
			t.Errorf("RanAtTime = %v, want %v", got.RanAtTime, second.RanAtTime)
		}
		if got.Finished() {
			t.Error("new entry should not be finished")
		}
		if !got.Failed() {
			t.Error("unfinished entry should count as failed")
		}
	})

	t.Run("InsertDuplicateSlot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.InsertIfAbsent(ctx, runlog.NewEntry("job.a", base, base))
		if err != nil || !ok {
			t.Fatalf("first InsertIfAbsent() = (%v, %v), want (true, nil)", ok, err)
		}
		ok, err = s.InsertIfAbsent(ctx, runlog.NewEntry("job.a", base.Add(time.Second), base))
		if err != nil {
			t.Fatalf("second InsertIfAbsent() error = %v", err)
		}
		if ok {
			t.Fatal("second InsertIfAbsent() for the same slot = true, want false")
		}

		entries, err := s.List(ctx, "job.a", 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("List() len = %d, want 1", len(entries))
		}
	})

	t.Run("ConcurrentInsertSameSlot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 8
		var wg sync.WaitGroup
		wins := make(chan bool, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.InsertIfAbsent(ctx, runlog.NewEntry("job.race", base, base))
				if err != nil {
					t.Errorf("InsertIfAbsent() error = %v", err)
					return
				}
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for ok := range wins {
			if ok {
				won++
			}
		}
		if won != 1 {
			t.Fatalf("%d concurrent inserts won, want exactly 1", won)
		}
	})

	t.Run("Finalize", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e := runlog.NewEntry("job.a", base, base)
		if _, err := s.InsertIfAbsent(ctx, e); err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		end := base.Add(3 * time.Second)
		if err := s.Finalize(ctx, e.ID, end, false, "disk full"); err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}

		got, err := s.FindLatest(ctx, "job.a")
		if err != nil {
			t.Fatalf("FindLatest() error = %v", err)
		}
		if !got.Finished() {
			t.Fatal("entry should be finished")
		}
		if !got.EndTime.Equal(end) {
			t.Errorf("EndTime = %v, want %v", *got.EndTime, end)
		}
		if *got.IsSuccess {
			t.Error("IsSuccess = true, want false")
		}
		if got.Message != "disk full" {
			t.Errorf("Message = %q, want %q", got.Message, "disk full")
		}

		if err := s.Finalize(ctx, e.ID, end, true, ""); !errors.Is(err, runlog.ErrAlreadyFinalized) {
			t.Errorf("second Finalize() error = %v, want ErrAlreadyFinalized", err)
		}
	})

	t.Run("FindLatestSuccessSkipsFailures", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		got, err := s.FindLatestSuccess(ctx, "job.a")
		if err != nil || got != nil {
			t.Fatalf("FindLatestSuccess(empty) = (%+v, %v), want (nil, nil)", got, err)
		}

		ok := runlog.NewEntry("job.a", base, base)
		failed := runlog.NewEntry("job.a", base.Add(10*time.Minute), base.Add(10*time.Minute))
		open := runlog.NewEntry("job.a", base.Add(20*time.Minute), base.Add(20*time.Minute))
		for _, e := range []*runlog.Entry{ok, failed, open} {
			if _, err := s.InsertIfAbsent(ctx, e); err != nil {
				t.Fatalf("InsertIfAbsent() error = %v", err)
			}
		}
		if err := s.Finalize(ctx, ok.ID, base.Add(time.Second), true, ""); err != nil {
			t.Fatalf("Finalize(ok) error = %v", err)
		}
		if err := s.Finalize(ctx, failed.ID, base.Add(11*time.Minute), false, "boom"); err != nil {
			t.Fatalf("Finalize(failed) error = %v", err)
		}

		got, err = s.FindLatestSuccess(ctx, "job.a")
		if err != nil {
			t.Fatalf("FindLatestSuccess() error = %v", err)
		}
		if got == nil || got.ID != ok.ID {
			t.Fatalf("FindLatestSuccess() = %+v, want entry %s", got, ok.ID)
		}

		latest, err := s.FindLatest(ctx, "job.a")
		if err != nil {
			t.Fatalf("FindLatest() error = %v", err)
		}
		if latest == nil || latest.ID != open.ID {
			t.Fatalf("FindLatest() = %+v, want entry %s", latest, open.ID)
		}

		later := runlog.NewEntry("job.a", base.Add(30*time.Minute), base.Add(30*time.Minute))
		if _, err := s.InsertIfAbsent(ctx, later); err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
		if err := s.Finalize(ctx, later.ID, base.Add(31*time.Minute), true, ""); err != nil {
			t.Fatalf("Finalize(later) error = %v", err)
		}
		got, err = s.FindLatestSuccess(ctx, "job.a")
		if err != nil {
			t.Fatalf("FindLatestSuccess() error = %v", err)
		}
		if got == nil || got.ID != later.ID {
			t.Fatalf("FindLatestSuccess() = %+v, want entry %s", got, later.ID)
		}
	})

	t.Run("FinalizeUnknown", func(t *testing.T) {
		s := newStore(t)
		err := s.Finalize(context.Background(), "01908a9c-e4a5-7c8b-8d3e-0a1b2c3d4e5f", base, true, "")
		if !errors.Is(err, runlog.ErrEntryNotFound) {
			t.Errorf("Finalize(unknown) error = %v, want ErrEntryNotFound", err)
		}
	})

	t.Run("ListNewestFirstWithLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			at := base.Add(time.Duration(i) * time.Minute)
			if _, err := s.InsertIfAbsent(ctx, runlog.NewEntry("job.a", at, at)); err != nil {
				t.Fatalf("InsertIfAbsent() error = %v", err)
			}
		}

		got, err := s.List(ctx, "job.a", 3)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("List() len = %d, want 3", len(got))
		}
		for i, e := range got {
			want := base.Add(time.Duration(4-i) * time.Minute)
			if !e.StartTime.Equal(want) {
				t.Errorf("List()[%d].StartTime = %v, want %v", i, e.StartTime, want)
			}
		}
	})
}
