package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// JobOption customizes a job built by NewTestJob.
type JobOption func(*domain.Job)

// WithJobOwner sets the submitter.
func WithJobOwner(ownerID string) JobOption {
	return func(j *domain.Job) { j.UserID = ownerID }
}

// WithJobType sets the job type.
func WithJobType(jobType domain.JobType) JobOption {
	return func(j *domain.Job) { j.Type = jobType }
}

// WithJobStatus sets the status. A FAILED job without an error message
// gets a generic one.
func WithJobStatus(status domain.JobStatus) JobOption {
	return func(j *domain.Job) {
		j.Status = status
		if status == domain.JobStatusFailed && j.ErrorMessage == "" {
			j.ErrorMessage = "test failure"
		}
	}
}

// WithJobError sets the error message.
func WithJobError(message string) JobOption {
	return func(j *domain.Job) { j.ErrorMessage = message }
}

// WithJobCreatedAt sets both timestamps.
func WithJobCreatedAt(at time.Time) JobOption {
	return func(j *domain.Job) {
		j.CreatedAt = at
		j.UpdatedAt = at
	}
}

// WithJobMetadata sets the task metadata.
func WithJobMetadata(m domain.JobMetadata) JobOption {
	return func(j *domain.Job) { j.Metadata = m }
}

// NewTestJob builds a PENDING TASK job owned by "test-owner" and applies
// opts.
func NewTestJob(t *testing.T, opts ...JobOption) *domain.Job {
	t.Helper()

	job, err := domain.NewJob("test-owner", domain.JobTypeTask, domain.JobMetadata{})
	require.NoError(t, err)

	for _, opt := range opts {
		opt(job)
	}
	if job.Type != domain.JobTypeTask {
		job.ID = domain.NewJobID(job.Type)
	}
	return job
}
