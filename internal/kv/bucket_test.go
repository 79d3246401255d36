package kv

import (
	"context"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// memBucket is an in-process jetstream.KeyValue covering the calls the run
// log and locker make. Delete ignores LastRevision, whose option value is
// opaque outside the jetstream package.
type memBucket struct {
	jetstream.KeyValue

	mu   sync.Mutex
	seq  uint64
	data map[string]*memValue

	// fail, when set, can reject a write before it is applied.
	fail func(op, key string) error
}

type memValue struct {
	value   []byte
	rev     uint64
	deleted bool
}

func newMemBucket() *memBucket {
	return &memBucket{data: make(map[string]*memValue)}
}

func (b *memBucket) failing(op, key string) error {
	if b.fail == nil {
		return nil
	}
	return b.fail(op, key)
}

func (b *memBucket) set(key string, value []byte) uint64 {
	b.seq++
	b.data[key] = &memValue{value: append([]byte(nil), value...), rev: b.seq}
	return b.seq
}

func (b *memBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok || v.deleted {
		return nil, jetstream.ErrKeyNotFound
	}
	return memEntry{key: key, value: append([]byte(nil), v.value...), rev: v.rev}, nil
}

func (b *memBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failing("put", key); err != nil {
		return 0, err
	}
	return b.set(key, value), nil
}

func (b *memBucket) Create(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failing("create", key); err != nil {
		return 0, err
	}
	if v, ok := b.data[key]; ok && !v.deleted {
		return 0, jetstream.ErrKeyExists
	}
	return b.set(key, value), nil
}

func (b *memBucket) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failing("update", key); err != nil {
		return 0, err
	}
	v, ok := b.data[key]
	if !ok || v.rev != revision {
		return 0, jetstream.ErrKeyExists
	}
	return b.set(key, value), nil
}

func (b *memBucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failing("delete", key); err != nil {
		return err
	}
	b.seq++
	b.data[key] = &memValue{rev: b.seq, deleted: true}
	return nil
}

func (b *memBucket) ListKeysFiltered(_ context.Context, filters ...string) (jetstream.KeyLister, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key, v := range b.data {
		if v.deleted {
			continue
		}
		for _, f := range filters {
			if subjectMatches(f, key) {
				keys = append(keys, key)
				break
			}
		}
	}
	ch := make(chan string, len(keys))
	for _, k := range keys {
		ch <- k
	}
	close(ch)
	return memLister{keys: ch}, nil
}

// subjectMatches applies NATS wildcard rules: "*" matches one token and ">"
// matches the rest.
func subjectMatches(filter, subject string) bool {
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")
	for i, tok := range ft {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) || (tok != "*" && tok != st[i]) {
			return false
		}
	}
	return len(ft) == len(st)
}

type memEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
	rev   uint64
}

func (e memEntry) Key() string      { return e.key }
func (e memEntry) Value() []byte    { return e.value }
func (e memEntry) Revision() uint64 { return e.rev }

type memLister struct {
	keys chan string
}

func (l memLister) Keys() <-chan string { return l.keys }
func (l memLister) Stop() error         { return nil }
