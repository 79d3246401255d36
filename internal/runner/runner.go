// Package runner executes a single job invocation: lock, due check, run-log
// insert, payload, finalize.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/lock"
	"github.com/openjobspec/ojs-cron/internal/runlog"
)

const tracerName = "github.com/openjobspec/ojs-cron/internal/runner"

// Options alter a single Run call.
type Options struct {
	// Force runs the job even when it is not due. The slot is now truncated
	// to the minute and still claimed through the run log.
	Force bool
}

// Runner runs jobs against a run-log store.
type Runner struct {
	store     runlog.Store
	locker    lock.Locker
	observers []Observer
	logger    *slog.Logger
	clock     func() time.Time
	tracer    trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLocker sets the per-job locker. The default is an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the clock used for end times. Scheduling decisions always use
// the instant passed to Run.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.clock = now }
}

// New creates a Runner.
func New(store runlog.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		locker: lock.NewMemory(),
		logger: slog.Default(),
		clock:  time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates job at now and runs it if due.
func (r *Runner) Run(ctx context.Context, job *core.Job, now time.Time) (Outcome, error) {
	return r.RunWithOptions(ctx, job, now, Options{})
}

// RunWithOptions is Run with per-call options.
//
// A non-nil error is always a *PersistenceError; payload failures are
// reported through Outcome.Err.
func (r *Runner) RunWithOptions(ctx context.Context, job *core.Job, now time.Time, opts Options) (Outcome, error) {
	out, err := r.run(ctx, job, now, opts)
	if err == nil || out.Ran() {
		r.notify(ctx, out)
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, job *core.Job, now time.Time, opts Options) (Outcome, error) {
	code := job.Code()
	skipped := Outcome{JobCode: code, Status: StatusSkipped}

	release, err := r.locker.TryLock(ctx, code)
	if errors.Is(err, lock.ErrLocked) {
		r.logger.Debug("job locked by another tick", "job", code)
		skipped.Conflict = true
		return skipped, nil
	}
	if err != nil {
		return skipped, &PersistenceError{Op: "lock", JobCode: code, Err: err}
	}

	entry, claimed, err := r.claim(ctx, job, now, opts)
	if relErr := release(ctx); relErr != nil {
		r.logger.Warn("failed to release job lock", "job", code, "error", relErr)
	}
	if err != nil {
		return skipped, err
	}
	if entry == nil {
		return skipped, nil
	}
	if !claimed {
		r.logger.Debug("slot already claimed", "job", code, "slot", entry.RanAtTime)
		skipped.Conflict = true
		return skipped, nil
	}

	return r.execute(ctx, job, entry)
}

// claim performs the due check and the run-log insert while the job lock is
// held. A nil entry means the job is not due.
func (r *Runner) claim(ctx context.Context, job *core.Job, now time.Time, opts Options) (*runlog.Entry, bool, error) {
	code := job.Code()

	var slot time.Time
	if opts.Force {
		slot = core.TruncateMinute(now)
	} else {
		latest, err := r.store.FindLatest(ctx, code)
		if err != nil {
			return nil, false, &PersistenceError{Op: "find latest", JobCode: code, Err: err}
		}
		lastSuccess := latest
		if latest != nil && !latest.Succeeded() {
			lastSuccess, err = r.store.FindLatestSuccess(ctx, code)
			if err != nil {
				return nil, false, &PersistenceError{Op: "find latest success", JobCode: code, Err: err}
			}
		}
		var due bool
		slot, due = core.IsDue(job.Schedule(), latest.LastRun(), lastSuccess.LastRun(), now)
		if !due {
			return nil, false, nil
		}
	}

	entry := runlog.NewEntry(code, now, slot)
	ok, err := r.store.InsertIfAbsent(ctx, entry)
	if err != nil {
		return nil, false, &PersistenceError{Op: "insert", JobCode: code, Err: err}
	}
	return entry, ok, nil
}

func (r *Runner) execute(ctx context.Context, job *core.Job, entry *runlog.Entry) (Outcome, error) {
	code := job.Code()

	ctx, span := r.tracer.Start(ctx, "cron.run", trace.WithAttributes(
		attribute.String("cron.job_code", code),
		attribute.String("cron.slot", core.FormatTime(entry.RanAtTime)),
		attribute.String("cron.entry_id", entry.ID),
	))
	defer span.End()

	r.logger.Info("running job", "job", code, "slot", entry.RanAtTime, "entry_id", entry.ID)

	started := r.clock()
	runErr := invoke(ctx, job.Payload())
	end := r.clock()

	out := Outcome{
		JobCode:  code,
		Status:   StatusSucceeded,
		Slot:     entry.RanAtTime,
		EntryID:  entry.ID,
		Duration: end.Sub(started),
	}
	var message string
	if runErr != nil {
		out.Status = StatusFailed
		out.Err = runErr
		message = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, message)
		r.logger.Error("job failed", "job", code, "entry_id", entry.ID, "error", runErr)
	} else {
		r.logger.Info("job succeeded", "job", code, "entry_id", entry.ID, "duration_ms", out.Duration.Milliseconds())
	}

	if err := r.store.Finalize(ctx, entry.ID, end, runErr == nil, message); err != nil {
		return out, &PersistenceError{Op: "finalize", JobCode: code, Err: err}
	}
	return out, nil
}

// invoke calls the payload, converting a panic into a *core.PanicError.
func invoke(ctx context.Context, p core.Payload) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &core.PanicError{Value: v}
		}
	}()
	return p.Run(ctx)
}

func (r *Runner) notify(ctx context.Context, out Outcome) {
	for _, o := range r.observers {
		o.RunCompleted(ctx, out)
	}
}
