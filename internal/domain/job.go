package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a job
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// JobType identifies the kind of work a job performs
type JobType string

// Supported job types
const (
	JobTypeAudio JobType = "AUDIO"
	JobTypeTask  JobType = "TASK"
)

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether a job in status s may move to next.
//
// PENDING may move to RUNNING, or straight to FAILED when the job can never
// start (dispatch rejected, orphaned by a restart). RUNNING may only end.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// AllowedPredecessors returns the statuses from which next can be reached.
func AllowedPredecessors(next JobStatus) []JobStatus {
	var from []JobStatus
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// IsValid reports whether t is one of the known job types.
func (t JobType) IsValid() bool {
	return t == JobTypeAudio || t == JobTypeTask
}

// GeoLocation is an optional point attached to a task job.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (g GeoLocation) Validate() error {
	if math.IsNaN(g.Latitude) || g.Latitude < -90 || g.Latitude > 90 {
		return NewValidationError("geo.latitude", "must be between -90 and 90", ErrValidation)
	}
	if math.IsNaN(g.Longitude) || g.Longitude < -180 || g.Longitude > 180 {
		return NewValidationError("geo.longitude", "must be between -180 and 180", ErrValidation)
	}
	return nil
}

// JobMetadata carries the optional task-specific attributes of a job.
// They are stored with the job and copied into its analysis result.
type JobMetadata struct {
	Geo   *GeoLocation `json:"geo,omitempty"`
	Name  *string      `json:"name,omitempty"`
	Group *string      `json:"group,omitempty"`
	Data  *string      `json:"data,omitempty"`
}

// Job is a unit of submitted work tracked from PENDING to a terminal status.
// The record is owned by the job store; everything else holds copies.
type Job struct {
	ID           string      `json:"job_id"`
	UserID       string      `json:"user_id"`
	Type         JobType     `json:"type"`
	Status       JobStatus   `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Metadata     JobMetadata `json:"metadata"`
}

// NewJobID builds an opaque job identifier. The type suffix is for humans
// reading logs; callers must not parse it.
func NewJobID(jobType JobType) string {
	return fmt.Sprintf("job_%s_%s", uuid.New(), strings.ToLower(string(jobType)))
}

// NewJob creates a PENDING job owned by userID.
// Returns an error if validation fails.
func NewJob(userID string, jobType JobType, metadata JobMetadata) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        NewJobID(jobType),
		UserID:    userID,
		Type:      jobType,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == "" {
		return NewValidationError("job_id", "is required", ErrInvalidID)
	}

	if strings.TrimSpace(j.UserID) == "" {
		return NewValidationError("user_id", "is required", ErrValidation)
	}

	if !j.Type.IsValid() {
		return NewValidationError("type", fmt.Sprintf("%q is not a job type", j.Type), ErrInvalidJobType)
	}

	if !j.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("%q is not a job status", j.Status), ErrInvalidJobStatus)
	}

	if j.Metadata.Geo != nil {
		if err := j.Metadata.Geo.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Transition applies a status change to the in-memory copy, enforcing the
// state machine. FAILED requires a message; SUCCEEDED clears any previous one.
func (j *Job) Transition(next JobStatus, errorMessage string) error {
	if err := ValidateTransition(j.Status, next, errorMessage); err != nil {
		return err
	}

	j.Status = next
	j.ErrorMessage = NormalizeErrorMessage(next, errorMessage)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidateTransition checks that from -> next is legal and that the error
// message fits the target status.
func ValidateTransition(from, next JobStatus, errorMessage string) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobStatus, next)
	}
	if !from.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	if next == JobStatusFailed && strings.TrimSpace(errorMessage) == "" {
		return NewValidationError("error_message", "is required for FAILED", ErrValidation)
	}
	return nil
}

// NormalizeErrorMessage returns the message to persist alongside status.
func NormalizeErrorMessage(status JobStatus, errorMessage string) string {
	if status == JobStatusFailed {
		return errorMessage
	}
	return ""
}
