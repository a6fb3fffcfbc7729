package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrInvalidJobType     = errors.New("jobqueue: invalid job type (must be alphanumeric, start with letter)")
	ErrJobTypeTooLong     = errors.New("jobqueue: job type too long")
	ErrJobDataTooLarge    = errors.New("jobqueue: job data exceeds size limit")
	ErrInvalidStatus      = errors.New("jobqueue: invalid job status")
	ErrJobNotFound        = errors.New("jobqueue: job not found")
	ErrJobNotOwned        = errors.New("jobqueue: job not owned by this worker")
	ErrNoHandler          = errors.New("jobqueue: no handler registered")
	ErrCleanupNonTerminal = errors.New("jobqueue: cleanup only removes completed or failed jobs")
)

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
