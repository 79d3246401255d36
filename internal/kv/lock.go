package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/lock"
)

// Locker implements lock.Locker with KV Create. Stale locks disappear with the
// bucket's TTL.
type Locker struct {
	store *Store
	owner string
}

// NewLocker creates a Locker over bucket. owner is stored as the lock value
// for diagnostics.
func NewLocker(bucket jetstream.KeyValue, owner string) *Locker {
	if owner == "" {
		owner = core.NewUUIDv7()
	}
	return &Locker{store: NewStore(bucket), owner: owner}
}

var _ lock.Locker = (*Locker)(nil)

func (l *Locker) TryLock(ctx context.Context, key string) (lock.Release, error) {
	k := lockKey(key)
	rev, err := l.store.Create(ctx, k, []byte(l.owner))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return nil, lock.ErrLocked
		}
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if err := l.store.DeleteAt(ctx, k, rev); err != nil {
			if isRevisionConflict(err) {
				return lock.ErrNotHeld
			}
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
