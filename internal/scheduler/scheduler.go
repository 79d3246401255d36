// Package scheduler drives ticks: each tick evaluates every registered job
// once, in registration order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/runner"
)

// DefaultSpec fires a tick at the start of every minute.
const DefaultSpec = "* * * * *"

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// JobRunner runs a single job. *runner.Runner satisfies it.
type JobRunner interface {
	RunWithOptions(ctx context.Context, job *core.Job, now time.Time, opts runner.Options) (runner.Outcome, error)
}

// Result is one job's share of a tick.
type Result struct {
	Outcome runner.Outcome
	// Err is a persistence error that abandoned the job for this tick.
	Err error
}

// Report summarizes a tick.
type Report struct {
	Now     time.Time
	Results []Result
}

// Count returns how many results have the given status.
func (r Report) Count(status runner.Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.Outcome.Status == status {
			n++
		}
	}
	return n
}

// Errors returns the number of jobs abandoned because of persistence errors.
func (r Report) Errors() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// TickObserver is notified after each tick.
type TickObserver interface {
	TickCompleted(report Report, elapsed time.Duration)
}

// Scheduler evaluates jobs on demand (Tick) or on a cron cadence (Start).
type Scheduler struct {
	runner   JobRunner
	registry *core.Registry
	logger   *slog.Logger
	clock    func() time.Time
	observer TickObserver
	opts     runner.Options

	mu       sync.Mutex
	cron     *cron.Cron
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock sets the clock used by cron-driven ticks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.clock = now }
}

// WithTickObserver sets an observer for tick reports.
func WithTickObserver(o TickObserver) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithRunOptions sets the runner options applied to every job in a tick.
func WithRunOptions(opts runner.Options) Option {
	return func(s *Scheduler) { s.opts = opts }
}

// New creates a Scheduler over registry.
func New(r JobRunner, registry *core.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   r,
		registry: registry,
		logger:   slog.Default(),
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick evaluates jobs at now, sequentially and in order. A failing job never
// prevents later jobs from being evaluated.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, jobs []*core.Job) Report {
	start := time.Now()
	report := Report{Now: now, Results: make([]Result, 0, len(jobs))}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("tick cancelled", "remaining_from", job.Code(), "error", err)
			break
		}
		out, err := s.runner.RunWithOptions(ctx, job, now, s.opts)
		if err != nil {
			s.logger.Error("job abandoned for this tick", "job", job.Code(), "error", err)
		}
		report.Results = append(report.Results, Result{Outcome: out, Err: err})
	}

	elapsed := time.Since(start)
	s.logger.Debug("tick completed",
		"jobs", len(jobs),
		"succeeded", report.Count(runner.StatusSucceeded),
		"failed", report.Count(runner.StatusFailed),
		"errors", report.Errors(),
		"duration_ms", elapsed.Milliseconds(),
	)
	if s.observer != nil {
		s.observer.TickCompleted(report, elapsed)
	}
	return report
}

// TickAll runs one tick over every registered job.
func (s *Scheduler) TickAll(ctx context.Context, now time.Time) Report {
	return s.Tick(ctx, now, s.registry.Jobs())
}

// Start begins firing ticks on the given cron spec (five fields, or a
// descriptor such as "@every 30s"). It returns once the cron loop runs.
// A Scheduler starts at most once.
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}
	if s.cron != nil {
		return ErrAlreadyStarted
	}
	if spec == "" {
		spec = DefaultSpec
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
		cron.WithLogger(cronLogger{s.logger}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(spec, func() { s.TickAll(ctx, s.clock()) }); err != nil {
		cancel()
		return fmt.Errorf("invalid tick spec %q: %w", spec, err)
	}
	s.cron = c
	go func() {
		<-s.stop
		cancel()
	}()
	c.Start()
	s.logger.Info("scheduler started", "spec", spec, "jobs", s.registry.Len())
	return nil
}

// Stop halts the cron loop, cancels the context of a running tick and waits
// for it to return. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.stop)
		c := s.cron
		s.mu.Unlock()
		if c != nil {
			<-c.Stop().Done()
		}
	})
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
