// Package lock provides per-key try-locks that serialize the due check and
// run-log insert of one job across overlapping ticks.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultTTL bounds how long a lock survives a crashed holder.
	DefaultTTL = 30 * time.Second
)

var (
	// ErrLocked is returned by TryLock when another holder owns the key.
	ErrLocked = errors.New("lock held by another owner")

	// ErrNotHeld is returned when releasing a lock that has expired or was
	// taken over.
	ErrNotHeld = errors.New("lock not held")
)

// Release gives a lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker acquires named locks without waiting.
type Locker interface {
	TryLock(ctx context.Context, key string) (Release, error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(_ context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
			err = nil
		})
		return err
	}, nil
}

// Nop is a Locker that always succeeds. Use it when the store alone
// guarantees uniqueness.
type Nop struct{}

func (Nop) TryLock(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
