package core

import (
	"context"
	"strings"
)

// Payload is the work a job performs. Run may block; a returned error marks
// the run as failed.
type Payload interface {
	Run(ctx context.Context) error
}

// PayloadFunc adapts an ordinary function to Payload.
type PayloadFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f PayloadFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Job pairs a unique code with its schedule and payload. Jobs are built once
// at registration and never mutated.
type Job struct {
	code     string
	schedule ScheduleRule
	payload  Payload
}

// NewJob validates and builds a Job.
func NewJob(code string, schedule ScheduleRule, payload Payload) (*Job, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	if schedule.IsZero() {
		return nil, NewConfigError("schedule", "job "+code+" has no schedule")
	}
	if payload == nil {
		return nil, ErrNilPayload
	}
	return &Job{code: code, schedule: schedule, payload: payload}, nil
}

// Code returns the job's unique identifier.
func (j *Job) Code() string { return j.code }

// Schedule returns the job's schedule rule.
func (j *Job) Schedule() ScheduleRule { return j.schedule }

// Payload returns the job's payload.
func (j *Job) Payload() Payload { return j.payload }
