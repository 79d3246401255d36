package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/runlog"
	"github.com/openjobspec/ojs-cron/internal/runner"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// JobRunner runs a single job.
type JobRunner interface {
	RunWithOptions(ctx context.Context, job *core.Job, now time.Time, opts runner.Options) (runner.Outcome, error)
}

// JobHandler serves the job and run-log endpoints.
type JobHandler struct {
	registry *core.Registry
	store    runlog.Store
	runner   JobRunner
	clock    func() time.Time
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(registry *core.Registry, store runlog.Store, r JobRunner) *JobHandler {
	return &JobHandler{registry: registry, store: store, runner: r, clock: time.Now}
}

// JobView is the JSON form of a registered job.
type JobView struct {
	Code     string       `json:"code"`
	Schedule ScheduleView `json:"schedule"`
	LastRun  *EntryView   `json:"last_run"`
}

// ScheduleView is the JSON form of a schedule rule.
type ScheduleView struct {
	Summary               string   `json:"summary"`
	RunAtTimes            []string `json:"run_at_times,omitempty"`
	RunEveryMins          int      `json:"run_every_mins,omitempty"`
	RunOnDays             []int    `json:"run_on_days,omitempty"`
	RunMonthlyOnDays      []int    `json:"run_monthly_on_days,omitempty"`
	RetryAfterFailureMins int      `json:"retry_after_failure_mins,omitempty"`
}

// EntryView is the JSON form of a run-log entry.
type EntryView struct {
	ID        string  `json:"id"`
	JobCode   string  `json:"job_code"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
	IsSuccess *bool   `json:"is_success"`
	RanAtTime string  `json:"ran_at_time"`
	Message   string  `json:"message,omitempty"`
}

// OutcomeView is the JSON form of a manual run's outcome.
type OutcomeView struct {
	JobCode    string `json:"job_code"`
	Status     string `json:"status"`
	Conflict   bool   `json:"conflict,omitempty"`
	RanAtTime  string `json:"ran_at_time,omitempty"`
	EntryID    string `json:"entry_id,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func newScheduleView(r core.ScheduleRule) ScheduleView {
	v := ScheduleView{
		Summary:               r.String(),
		RunEveryMins:          r.RunEveryMins(),
		RunOnDays:             r.RunOnDays(),
		RunMonthlyOnDays:      r.RunMonthlyOnDays(),
		RetryAfterFailureMins: r.RetryAfterFailureMins(),
	}
	for _, t := range r.RunAtTimes() {
		v.RunAtTimes = append(v.RunAtTimes, t.String())
	}
	return v
}

func newEntryView(e *runlog.Entry) *EntryView {
	if e == nil {
		return nil
	}
	v := &EntryView{
		ID:        e.ID,
		JobCode:   e.JobCode,
		StartTime: core.FormatTime(e.StartTime),
		IsSuccess: e.IsSuccess,
		RanAtTime: core.FormatTime(e.RanAtTime),
		Message:   e.Message,
	}
	if e.EndTime != nil {
		end := core.FormatTime(*e.EndTime)
		v.EndTime = &end
	}
	return v
}

// List handles GET /v1/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.registry.Jobs()
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		v, err := h.view(r.Context(), job)
		if err != nil {
			slog.Error("failed to load last run", "job", job.Code(), "error", err)
			WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "run log unavailable")
			return
		}
		views = append(views, v)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// Get handles GET /v1/jobs/{code}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v, err := h.view(r.Context(), job)
	if err != nil {
		slog.Error("failed to load last run", "job", job.Code(), "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "run log unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"job": v})
}

// Runs handles GET /v1/jobs/{code}/runs?limit=N.
func (h *JobHandler) Runs(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	entries, err := h.store.List(r.Context(), job.Code(), limit)
	if err != nil {
		slog.Error("failed to list runs", "job", job.Code(), "error", err)
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "run log unavailable")
		return
	}
	views := make([]*EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": views})
}

// Run handles POST /v1/jobs/{code}/run. With ?force=true the due check is
// skipped.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var opts runner.Options
	if s := r.URL.Query().Get("force"); s != "" {
		force, err := strconv.ParseBool(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "force must be a boolean")
			return
		}
		opts.Force = force
	}

	out, err := h.runner.RunWithOptions(r.Context(), job, h.clock(), opts)
	if err != nil {
		slog.Error("manual run failed", "job", job.Code(), "error", err)
		// The payload already ran when only finalize failed.
		if out.Ran() {
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	v := OutcomeView{
		JobCode:    out.JobCode,
		Status:     string(out.Status),
		Conflict:   out.Conflict,
		EntryID:    out.EntryID,
		DurationMs: out.Duration.Milliseconds(),
	}
	if out.Ran() {
		v.RanAtTime = core.FormatTime(out.Slot)
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
	}
	WriteJSON(w, http.StatusOK, map[string]any{"outcome": v})
}

func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (*core.Job, bool) {
	code := chi.URLParam(r, "code")
	job, err := h.registry.Get(code)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "job "+code+" not found")
		return nil, false
	}
	return job, true
}

func (h *JobHandler) view(ctx context.Context, job *core.Job) (JobView, error) {
	latest, err := h.store.FindLatest(ctx, job.Code())
	if err != nil {
		return JobView{}, err
	}
	return JobView{
		Code:     job.Code(),
		Schedule: newScheduleView(job.Schedule()),
		LastRun:  newEntryView(latest),
	}, nil
}
