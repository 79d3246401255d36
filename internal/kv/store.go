// Package kv stores the run log and job locks in NATS JetStream key-value
// buckets.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// maxCASAttempts bounds compare-and-swap retries on revision conflicts.
const maxCASAttempts = 5

// Store provides typed access to a NATS KV bucket.
type Store struct {
	kv jetstream.KeyValue
}

// NewStore wraps a NATS KV bucket.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

// Put stores a value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Put(ctx, key, value)
}

// Create stores a value at key only if it doesn't already exist.
// Returns jetstream.ErrKeyExists if the key already exists.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Create(ctx, key, value)
}

// Update stores a value at key only if the revision matches.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	return s.kv.Update(ctx, key, value, revision)
}

// DeleteAt removes a key only if its last revision is revision.
func (s *Store) DeleteAt(ctx context.Context, key string, revision uint64) error {
	return s.kv.Delete(ctx, key, jetstream.LastRevision(revision))
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// KeysFiltered returns the keys matching any of the subject filters.
func (s *Store) KeysFiltered(ctx context.Context, filters ...string) ([]string, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, filters...)
	if err != nil {
		return nil, err
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, rev, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return 0, fmt.Errorf("unmarshal key %s: %w", key, err)
	}
	return rev, nil
}

// CreateJSON marshals v and stores it only if key is absent.
func (s *Store) CreateJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal key %s: %w", key, err)
	}
	return s.Create(ctx, key, data)
}

// UpdateJSON performs a compare-and-swap update on an existing JSON value.
// mutate receives the freshly loaded target and may abort by returning an
// error, which is passed through unchanged.
func (s *Store) UpdateJSON(ctx context.Context, key string, target any, mutate func() error) error {
	for i := 0; i < maxCASAttempts; i++ {
		rev, err := s.GetJSON(ctx, key, target)
		if err != nil {
			return err
		}
		if err := mutate(); err != nil {
			return err
		}
		data, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("marshal key %s: %w", key, err)
		}
		_, err = s.Update(ctx, key, data, rev)
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return err
		}
	}
	return fmt.Errorf("update key %s: too many revision conflicts", key)
}

// isRevisionConflict reports whether err is a wrong-last-sequence rejection.
func isRevisionConflict(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return errors.Is(err, jetstream.ErrKeyExists)
}
