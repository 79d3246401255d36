package nats

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openjobspec/ojs-cron/internal/runner"
)

func TestPubSubBrokerRunCompleted(t *testing.T) {
	broker := newIntegrationBroker(t)

	events, unsubscribe, err := broker.SubscribeJob("cron.EventJob")
	if err != nil {
		t.Fatalf("SubscribeJob() error = %v", err)
	}
	defer unsubscribe()

	slot := time.Date(2022, 10, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	broker.RunCompleted(ctx, runner.Outcome{JobCode: "cron.EventJob", Status: runner.StatusSkipped})
	broker.RunCompleted(ctx, runner.Outcome{
		JobCode:  "cron.EventJob",
		Status:   runner.StatusFailed,
		Slot:     slot,
		EntryID:  "entry-1",
		Err:      errors.New("boom"),
		Duration: 1500 * time.Millisecond,
	})
	if err := broker.nc.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Status != string(runner.StatusFailed) {
			t.Fatalf("event status = %q, want %q (skipped outcomes must not publish)", ev.Status, runner.StatusFailed)
		}
		if ev.EntryID != "entry-1" || ev.Error != "boom" || ev.DurationMs != 1500 {
			t.Fatalf("event = %+v, want entry-1/boom/1500", ev)
		}
		if ev.Slot != "2022-10-10T12:00:00.000Z" {
			t.Fatalf("event slot = %q, want 2022-10-10T12:00:00.000Z", ev.Slot)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run event")
	}
}

func TestPubSubBrokerUnsubscribeClosesChannel(t *testing.T) {
	broker := newIntegrationBroker(t)

	events, unsubscribe, err := broker.SubscribeAll()
	if err != nil {
		t.Fatalf("SubscribeAll() error = %v", err)
	}
	unsubscribe()
	unsubscribe()

	if _, ok := <-events; ok {
		t.Fatal("channel still open after unsubscribe")
	}
}

func newIntegrationBroker(t *testing.T) *PubSubBroker {
	t.Helper()

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	nc, err := nats.Connect(natsURL, nats.Timeout(2*time.Second))
	if err != nil {
		t.Skipf("skipping integration test; NATS unavailable at %s: %v", natsURL, err)
	}
	broker := NewPubSubBroker(nc, nil)
	t.Cleanup(func() {
		_ = broker.Close()
		nc.Close()
	})
	return broker
}
