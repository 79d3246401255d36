package core

import (
	"fmt"
	"sync"
)

// Registry holds jobs in registration order.
type Registry struct {
	mu    sync.RWMutex
	jobs  []*Job
	index map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register appends a job. Codes must be unique.
func (r *Registry) Register(job *Job) error {
	if job == nil {
		return ErrNilPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[job.code]; ok {
		return fmt.Errorf("register %s: %w", job.code, ErrDuplicateJob)
	}
	r.index[job.code] = len(r.jobs)
	r.jobs = append(r.jobs, job)
	return nil
}

// Add builds a job from its parts and registers it.
func (r *Registry) Add(code string, spec ScheduleSpec, payload Payload) error {
	rule, err := NewScheduleRule(spec)
	if err != nil {
		return fmt.Errorf("register %s: %w", code, err)
	}
	job, err := NewJob(code, rule, payload)
	if err != nil {
		return fmt.Errorf("register %s: %w", code, err)
	}
	return r.Register(job)
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Get looks up a job by code.
func (r *Registry) Get(code string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, ErrJobNotFound)
	}
	return r.jobs[i], nil
}

// Select returns the named jobs in registration order. With no codes it
// returns every job. Unknown codes are an error.
func (r *Registry) Select(codes ...string) ([]*Job, error) {
	if len(codes) == 0 {
		return r.Jobs(), nil
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		if _, err := r.Get(c); err != nil {
			return nil, err
		}
		want[c] = true
	}
	var out []*Job
	for _, j := range r.Jobs() {
		if want[j.code] {
			out = append(out, j)
		}
	}
	return out, nil
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
