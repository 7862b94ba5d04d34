package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds surfaced at the service boundary.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrTimeout    = errors.New("score calculation still in progress")
	ErrClosed     = errors.New("scheduler is closed")
	ErrQueueFull  = errors.New("job queue is full")
	ErrSignature  = errors.New("webhook signature mismatch")

	errDegraded = errors.New("metrics degraded")
)

// PendingError is returned when the wait budget runs out before the job
// produced a score. It matches ErrTimeout.
type PendingError struct {
	JobID string
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, ErrTimeout)
}

func (e *PendingError) Is(target error) bool { return target == ErrTimeout }

// NotFoundError names what was missing. It matches ErrNotFound.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError describes rejected input. It matches ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func notFound(msg string) error { return &NotFoundError{Msg: msg} }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
