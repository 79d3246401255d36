package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-cron/internal/runlog"
)

// RunLogStore implements runlog.Store on a NATS KV bucket. Slot uniqueness
// comes from KV Create, which fails when the entry key already exists.
type RunLogStore struct {
	store *Store
}

// NewRunLogStore creates a RunLogStore over bucket.
func NewRunLogStore(bucket jetstream.KeyValue) *RunLogStore {
	return &RunLogStore{store: NewStore(bucket)}
}

var _ runlog.Store = (*RunLogStore)(nil)

func (r *RunLogStore) FindLatest(ctx context.Context, code string) (*runlog.Entry, error) {
	return r.findByPointer(ctx, headKey(code), code)
}

func (r *RunLogStore) FindLatestSuccess(ctx context.Context, code string) (*runlog.Entry, error) {
	return r.findByPointer(ctx, successKey(code), code)
}

// findByPointer follows a head-style pointer key to its entry.
func (r *RunLogStore) findByPointer(ctx context.Context, pointer, code string) (*runlog.Entry, error) {
	var head headState
	if _, err := r.store.GetJSON(ctx, pointer, &head); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s for %s: %w", pointer, code, err)
	}
	e, _, err := r.getEntry(ctx, head.Key)
	if err != nil {
		return nil, fmt.Errorf("read entry %s for %s: %w", head.Key, code, err)
	}
	return e, nil
}

// InsertIfAbsent creates the entry key, then its id index, then moves the
// head pointer. When a later step fails the entry is removed again so the
// slot stays claimable.
func (r *RunLogStore) InsertIfAbsent(ctx context.Context, e *runlog.Entry) (bool, error) {
	key := entryKey(e.JobCode, e.RanAtTime)
	state := entryToState(e)

	rev, err := r.store.CreateJSON(ctx, key, state)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create entry %s: %w", key, err)
	}
	if _, err := r.store.Put(ctx, idKey(e.ID), []byte(key)); err != nil {
		err = fmt.Errorf("index entry %s: %w", e.ID, err)
		return false, r.rollback(ctx, key, rev, "", err)
	}
	if err := r.advance(ctx, headKey(e.JobCode), key, state); err != nil {
		return false, r.rollback(ctx, key, rev, idKey(e.ID), err)
	}
	return true, nil
}

// rollback removes a half-written entry and its index and returns cause joined
// with any cleanup failure.
func (r *RunLogStore) rollback(ctx context.Context, key string, rev uint64, index string, cause error) error {
	errs := []error{cause}
	if index != "" {
		if err := r.store.Delete(ctx, index); err != nil {
			errs = append(errs, fmt.Errorf("roll back index %s: %w", index, err))
		}
	}
	if err := r.store.DeleteAt(ctx, key, rev); err != nil {
		errs = append(errs, fmt.Errorf("roll back entry %s: %w", key, err))
	}
	return errors.Join(errs...)
}

// advance moves the pointer at pk to key unless it already points at a newer
// entry.
func (r *RunLogStore) advance(ctx context.Context, pk, key string, state *entryState) error {
	next := headState{Key: key, StartTime: state.StartTime, RanAtTime: state.RanAtTime}

	if _, err := r.store.CreateJSON(ctx, pk, &next); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrKeyExists) {
		return fmt.Errorf("create %s: %w", pk, err)
	}

	var head headState
	errStale := errors.New("pointer is newer")
	err := r.store.UpdateJSON(ctx, pk, &head, func() error {
		if !head.olderThan(state) {
			return errStale
		}
		head = next
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("advance %s: %w", pk, err)
	}
	return nil
}

func (r *RunLogStore) Finalize(ctx context.Context, id string, end time.Time, success bool, message string) error {
	key, _, err := r.store.Get(ctx, idKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("finalize %s: %w", id, runlog.ErrEntryNotFound)
		}
		return fmt.Errorf("finalize %s: %w", id, err)
	}

	var state entryState
	err = r.store.UpdateJSON(ctx, string(key), &state, func() error {
		if state.finished() {
			return runlog.ErrAlreadyFinalized
		}
		state.finalize(end, success, message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("finalize %s: %w", id, err)
	}
	if !success {
		return nil
	}
	if err := r.advance(ctx, successKey(state.JobCode), string(key), &state); err != nil {
		return fmt.Errorf("finalize %s: %w", id, err)
	}
	return nil
}

func (r *RunLogStore) List(ctx context.Context, code string, limit int) ([]*runlog.Entry, error) {
	keys, err := r.store.KeysFiltered(ctx, entryKeyFilter(code))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	entries := make([]*runlog.Entry, 0, len(keys))
	for _, key := range keys {
		e, _, err := r.getEntry(ctx, key)
		if err != nil {
			// Deleted between listing and Get.
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		entries = append(entries, e)
	}
	runlog.SortNewestFirst(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *RunLogStore) getEntry(ctx context.Context, key string) (*runlog.Entry, uint64, error) {
	var state entryState
	rev, err := r.store.GetJSON(ctx, key, &state)
	if err != nil {
		return nil, 0, err
	}
	e, err := stateToEntry(&state)
	if err != nil {
		return nil, 0, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return e, rev, nil
}
