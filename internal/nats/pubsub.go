package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/runner"
)

// RunEvent is the JSON message published after a job ran.
type RunEvent struct {
	JobCode    string `json:"job_code"`
	Status     string `json:"status"`
	EntryID    string `json:"entry_id"`
	Slot       string `json:"ran_at_time"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// PubSubBroker publishes run outcomes on NATS core pub/sub and lets callers
// subscribe to them. It implements runner.Observer.
type PubSubBroker struct {
	nc     *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewPubSubBroker creates a new PubSubBroker using the given NATS connection.
func NewPubSubBroker(nc *nats.Conn, logger *slog.Logger) *PubSubBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSubBroker{nc: nc, logger: logger}
}

var _ runner.Observer = (*PubSubBroker)(nil)

// RunCompleted publishes an event for every outcome that actually ran.
func (b *PubSubBroker) RunCompleted(_ context.Context, o runner.Outcome) {
	if !o.Ran() {
		return
	}
	event := &RunEvent{
		JobCode:    o.JobCode,
		Status:     string(o.Status),
		EntryID:    o.EntryID,
		Slot:       core.FormatTime(o.Slot),
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		event.Error = o.Err.Error()
	}
	if err := b.Publish(event); err != nil {
		b.logger.Error("failed to publish run event", "error", err, "job_code", o.JobCode)
	}
}

// Publish sends event on its job's subject.
func (b *PubSubBroker) Publish(event *RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(EventSubject(subjectToken(event.JobCode)), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// SubscribeJob subscribes to events for a specific job.
func (b *PubSubBroker) SubscribeJob(code string) (<-chan *RunEvent, func(), error) {
	return b.subscribe(EventSubject(subjectToken(code)))
}

// SubscribeAll subscribes to all run events.
func (b *PubSubBroker) SubscribeAll() (<-chan *RunEvent, func(), error) {
	return b.subscribe(EventsAllSubject())
}

func (b *PubSubBroker) subscribe(subject string) (<-chan *RunEvent, func(), error) {
	ch := make(chan *RunEvent, 64)
	var (
		mu     sync.Mutex
		closed bool
	)

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event RunEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("failed to unmarshal event", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- &event:
		default:
			b.logger.Warn("dropping event, subscriber channel full", "subject", subject)
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}

	return ch, unsubscribe, nil
}

// Close unsubscribes all subscriptions.
func (b *PubSubBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	return nil
}

// subjectToken replaces characters NATS reserves in subjects.
func subjectToken(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '*', '>':
			return '_'
		}
		return r
	}, code)
}
