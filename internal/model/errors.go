package model

import "errors"

// ErrorClass categorizes a stage failure for the orchestrator.
type ErrorClass string

const (
	// ErrorTransient covers store or engine unavailability and resource
	// exhaustion; the job is re-queued with backoff.
	ErrorTransient ErrorClass = "transient"
	// ErrorPermanent covers corrupt/unsupported input and exhausted
	// retries; the job reaches a terminal failure.
	ErrorPermanent ErrorClass = "permanent"
)

// StageError is the only error shape that crosses a stage boundary
// into the orchestrator. Raw internal errors stay wrapped inside.
type StageError struct {
	Stage   JobStage
	Class   ErrorClass
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps a retryable stage failure
func NewTransientError(stage JobStage, message string, err error) *StageError {
	return &StageError{Stage: stage, Class: ErrorTransient, Message: message, Err: err}
}

// NewPermanentError wraps a non-retryable stage failure
func NewPermanentError(stage JobStage, message string, err error) *StageError {
	return &StageError{Stage: stage, Class: ErrorPermanent, Message: message, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified
// errors default to transient so an unknown failure never skips the
// retry budget.
func IsTransient(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class == ErrorTransient
	}
	return true
}

// StageOf extracts the failing stage from a classified error.
func StageOf(err error) JobStage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
