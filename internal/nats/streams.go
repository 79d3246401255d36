package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SetupBuckets creates the run-log and lock KV buckets if missing. Lock keys
// expire after lockTTL so a crashed holder cannot block a job forever.
func SetupBuckets(ctx context.Context, js jetstream.JetStream, lockTTL time.Duration) error {
	buckets := []struct {
		name    string
		ttl     time.Duration
		history uint8
	}{
		{BucketRunLog, 0, 1},
		{BucketLocks, lockTTL, 1},
	}

	for _, b := range buckets {
		cfg := jetstream.KeyValueConfig{
			Bucket:  b.name,
			Storage: jetstream.FileStorage,
			History: b.history,
		}
		if b.ttl > 0 {
			cfg.TTL = b.ttl
		}
		if _, err := js.CreateOrUpdateKeyValue(ctx, cfg); err != nil {
			return fmt.Errorf("creating KV bucket %s: %w", b.name, err)
		}
	}

	return nil
}
