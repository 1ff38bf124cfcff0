package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed requests and submissions
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when no actor identity was supplied
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the actor does not own the resource
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a job or content item does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a state change is not legal from the job's current state
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict is returned when a concurrent writer kept winning the compare-and-swap on a job
	ErrConflict = errors.New("concurrent modification")

	// ErrJobBusy is returned when the job is being executed by this process or is leased by another worker
	ErrJobBusy = errors.New("job is already running")

	// ErrLeaseLost is returned when a worker acts on a job whose lease another worker now holds
	ErrLeaseLost = errors.New("job lease lost")

	// ErrSkipStep is returned by a step that has nothing to do for the job
	ErrSkipStep = errors.New("step skipped")

	// ErrTimeout marks a step attempt that exceeded its time budget
	ErrTimeout = errors.New("timeout")
)

// TransientError wraps failures that may succeed when retried (network errors, rate limits, 5xx)
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new transient error
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// PermanentError wraps failures that will not succeed on retry (invalid content, insufficient funds)
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new permanent error
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is classified as retryable
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// InvalidInputf formats an ErrInvalidInput with a human-readable reason
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
