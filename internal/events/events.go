package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// JobEvent records one status change of a job.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	JobID   string           `json:"job_id"`
	JobType domain.JobType   `json:"job_type"`
	UserID  string           `json:"user_id"`
	Status  domain.JobStatus `json:"status"`

	// Error is set when Status is FAILED
	Error string `json:"error,omitempty"`

	// OccurredAt is the job's updated_at after the write
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent creates an event describing the current state of job.
func NewJobEvent(job *domain.Job) *JobEvent {
	occurred := job.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return &JobEvent{
		ID:         uuid.New(),
		JobID:      job.ID,
		JobType:    job.Type,
		UserID:     job.UserID,
		Status:     job.Status,
		Error:      job.ErrorMessage,
		OccurredAt: occurred,
	}
}

// Terminal reports whether the event ends the job's lifecycle.
func (e *JobEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the runner to publish status changes without knowing who listens.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *JobEvent) error { return nil }
