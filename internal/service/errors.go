package service

import (
	"errors"
	"fmt"

	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is(); the API layer maps them to HTTP
// status codes.
var (
	// ErrJobNotFinished indicates a result was requested for a job that has
	// not SUCCEEDED. API layer should map this to HTTP 409 Conflict.
	ErrJobNotFinished = errors.New("job not finished")

	// ErrOwnerRequired indicates a submission without an owner id.
	// API layer should map this to HTTP 400 Bad Request.
	ErrOwnerRequired = errors.New("owner id is required")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "create_audio_job")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
// Not-found errors from the store are returned unwrapped.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrJobNotFound) {
		return store.ErrJobNotFound
	}
	if errors.Is(err, store.ErrResultNotFound) {
		return store.ErrResultNotFound
	}
	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
