package runlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is safe for concurrent use
// and is the default store for single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Entry
	byCode  map[string][]*Entry
	slotKey map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Entry),
		byCode:  make(map[string][]*Entry),
		slotKey: make(map[string]struct{}),
	}
}

// SlotKey is the uniqueness key of an entry: job code plus scheduled slot.
func SlotKey(code string, slot time.Time) string {
	return code + "@" + slot.UTC().Format(time.RFC3339)
}

func (s *MemoryStore) FindLatest(_ context.Context, code string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := Latest(s.byCode[code])
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (s *MemoryStore) FindLatestSuccess(_ context.Context, code string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := LatestSuccess(s.byCode[code])
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, e *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SlotKey(e.JobCode, e.RanAtTime)
	if _, ok := s.slotKey[key]; ok {
		return false, nil
	}
	if _, ok := s.byID[e.ID]; ok {
		return false, fmt.Errorf("insert entry %s: duplicate id", e.ID)
	}
	c := e.Clone()
	s.slotKey[key] = struct{}{}
	s.byID[c.ID] = c
	s.byCode[c.JobCode] = append(s.byCode[c.JobCode], c)
	return true, nil
}

func (s *MemoryStore) Finalize(_ context.Context, id string, end time.Time, success bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("finalize %s: %w", id, ErrEntryNotFound)
	}
	if e.Finished() {
		return fmt.Errorf("finalize %s: %w", id, ErrAlreadyFinalized)
	}
	e.finalize(end, success, message)
	return nil
}

func (s *MemoryStore) List(_ context.Context, code string, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.byCode[code]
	out := make([]*Entry, 0, len(src))
	for _, e := range src {
		out = append(out, e.Clone())
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the total number of entries across all jobs.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// SortNewestFirst orders entries by descending start time.
func SortNewestFirst(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return newer(entries[i], entries[j]) })
}
