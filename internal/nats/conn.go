package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn bundles a NATS connection with its JetStream context and the opened
// KV buckets.
type Conn struct {
	NC     *nats.Conn
	JS     jetstream.JetStream
	RunLog jetstream.KeyValue
	Locks  jetstream.KeyValue
}

// Connect dials NATS and sets up the buckets the scheduler needs.
func Connect(ctx context.Context, natsURL string, lockTTL time.Duration) (*Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("ojs-cron"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := SetupBuckets(ctx, js, lockTTL); err != nil {
		nc.Close()
		return nil, fmt.Errorf("setting up JetStream: %w", err)
	}

	openKV := func(name string) (jetstream.KeyValue, error) {
		bucket, err := js.KeyValue(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("opening KV bucket %s: %w", name, err)
		}
		return bucket, nil
	}

	runLog, err := openKV(BucketRunLog)
	if err != nil {
		nc.Close()
		return nil, err
	}
	locks, err := openKV(BucketLocks)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Conn{NC: nc, JS: js, RunLog: runLog, Locks: locks}, nil
}

// Health reports whether the connection is usable.
func (c *Conn) Health() error {
	if !c.NC.IsConnected() {
		return fmt.Errorf("nats: %s", c.NC.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (c *Conn) Close() error {
	if err := c.NC.Drain(); err != nil {
		c.NC.Close()
		return err
	}
	return nil
}
