package kv

import (
	"time"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/runlog"
)

// entryState is the JSON form of a run-log entry in KV.
type entryState struct {
	ID        string `json:"id"`
	JobCode   string `json:"job_code"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time,omitempty"`
	IsSuccess *bool  `json:"is_success,omitempty"`
	RanAtTime string `json:"ran_at_time"`
	Message   string `json:"message,omitempty"`
}

// headState points at the latest entry of a job.
type headState struct {
	Key       string `json:"key"`
	StartTime string `json:"start_time"`
	RanAtTime string `json:"ran_at_time"`
}

func entryToState(e *runlog.Entry) *entryState {
	s := &entryState{
		ID:        e.ID,
		JobCode:   e.JobCode,
		StartTime: core.FormatTime(e.StartTime),
		RanAtTime: core.FormatTime(e.RanAtTime),
		IsSuccess: e.IsSuccess,
		Message:   e.Message,
	}
	if e.EndTime != nil {
		s.EndTime = core.FormatTime(*e.EndTime)
	}
	return s
}

func stateToEntry(s *entryState) (*runlog.Entry, error) {
	start, err := core.ParseTime(s.StartTime)
	if err != nil {
		return nil, err
	}
	slot, err := core.ParseTime(s.RanAtTime)
	if err != nil {
		return nil, err
	}
	e := &runlog.Entry{
		ID:        s.ID,
		JobCode:   s.JobCode,
		StartTime: start,
		RanAtTime: slot,
		IsSuccess: s.IsSuccess,
		Message:   s.Message,
	}
	if s.EndTime != "" {
		end, err := core.ParseTime(s.EndTime)
		if err != nil {
			return nil, err
		}
		e.EndTime = &end
	}
	return e, nil
}

// olderThan reports whether s started after the entry h points at.
func (h *headState) olderThan(s *entryState) bool {
	hs, err1 := core.ParseTime(h.StartTime)
	ss, err2 := core.ParseTime(s.StartTime)
	if err1 != nil || err2 != nil {
		return true
	}
	if !ss.Equal(hs) {
		return ss.After(hs)
	}
	hr, _ := core.ParseTime(h.RanAtTime)
	sr, _ := core.ParseTime(s.RanAtTime)
	return sr.After(hr)
}

func (s *entryState) finished() bool {
	return s.EndTime != "" && s.IsSuccess != nil
}

func (s *entryState) finalize(end time.Time, success bool, message string) {
	s.EndTime = core.FormatTime(end)
	s.IsSuccess = &success
	s.Message = message
}
