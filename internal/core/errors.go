package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule matches every *ConfigError via errors.Is.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateJob is returned when a job code is registered twice.
	ErrDuplicateJob = errors.New("duplicate job code")

	// ErrNilPayload is returned when a job is registered without a payload.
	ErrNilPayload = errors.New("job payload is nil")

	// ErrEmptyCode is returned when a job is registered without a code.
	ErrEmptyCode = errors.New("job code is empty")

	// ErrJobNotFound is returned by registry lookups.
	ErrJobNotFound = errors.New("job not found")
)

// ConfigError reports a malformed schedule. It is fatal at registration.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidSchedule) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidSchedule
}

// PanicError wraps a value recovered from a panicking payload.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("payload panicked: %v", e.Value)
}
