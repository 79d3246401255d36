package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "job.a")
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}

	if _, err := l.TryLock(ctx, "job.a"); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock() error = %v, want ErrLocked", err)
	}

	other, err := l.TryLock(ctx, "job.b")
	if err != nil {
		t.Fatalf("TryLock(other key) error = %v", err)
	}
	if err := other(ctx); err != nil {
		t.Fatalf("release(other) error = %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if err := release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("double release() error = %v, want ErrNotHeld", err)
	}

	again, err := l.TryLock(ctx, "job.a")
	if err != nil {
		t.Fatalf("TryLock() after release error = %v", err)
	}
	_ = again(ctx)
}

func TestMemory(t *testing.T) {
	testLocker(t, NewMemory())
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	releases := make(chan Release, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			rel, err := m.TryLock(ctx, "job.race")
			if err != nil {
				return
			}
			mu.Lock()
			wins++
			mu.Unlock()
			releases <- rel
		}()
	}
	close(start)
	wg.Wait()
	close(releases)

	if wins != 1 {
		t.Fatalf("%d goroutines acquired the lock, want 1", wins)
	}
	for rel := range releases {
		_ = rel(ctx)
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var l Nop
	a, err := l.TryLock(ctx, "k")
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if _, err := l.TryLock(ctx, "k"); err != nil {
		t.Fatalf("Nop TryLock() should never fail, got %v", err)
	}
	_ = a(ctx)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis(t *testing.T) {
	_, client := newMiniRedis(t)
	testLocker(t, NewRedis(client, "ojs-cron:lock:", time.Minute))
}

func TestRedis_Expires(t *testing.T) {
	mr, client := newMiniRedis(t)
	l := NewRedis(client, "lock:", 10*time.Second)
	ctx := context.Background()

	stale, err := l.TryLock(ctx, "job.a")
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if ttl := mr.TTL("lock:job.a"); ttl != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", ttl)
	}

	mr.FastForward(11 * time.Second)

	fresh, err := l.TryLock(ctx, "job.a")
	if err != nil {
		t.Fatalf("TryLock() after expiry error = %v", err)
	}

	// The expired holder must not delete the new holder's key.
	if err := stale(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("stale release() error = %v, want ErrNotHeld", err)
	}
	if !mr.Exists("lock:job.a") {
		t.Error("stale release removed the new holder's lock")
	}
	if err := fresh(ctx); err != nil {
		t.Errorf("fresh release() error = %v", err)
	}
}

func TestRedis_DefaultTTL(t *testing.T) {
	_, client := newMiniRedis(t)
	l := NewRedis(client, "", 0)
	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", l.ttl, DefaultTTL)
	}
}

func TestRedis_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	l := NewRedis(client, "lock:", time.Second)
	if _, err := l.TryLock(context.Background(), "job.a"); err == nil || errors.Is(err, ErrLocked) {
		t.Errorf("TryLock() against a closed server error = %v, want a transport error", err)
	}
}
