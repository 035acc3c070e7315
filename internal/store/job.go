package store

import (
	"context"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// JobStore is the single owner of durable job records.
//
// Implementations must apply UpdateStatus as one atomic conditional write so
// that concurrent readers only ever observe legal transitions.
type JobStore interface {
	// Create persists a new PENDING job.
	// Returns ErrJobExists if the ID is taken, or a validation error.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	// Returns ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// List returns the jobs of ownerID, newest first. An empty ownerID lists
	// every job.
	List(ctx context.Context, ownerID string) ([]*domain.Job, error)

	// UpdateStatus moves a job to status and returns the updated record.
	// FAILED requires a non-empty errorMessage; other statuses clear it.
	// Returns ErrJobNotFound if the job does not exist and
	// ErrInvalidTransition if the job's current status cannot reach status.
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) (*domain.Job, error)

	// FailUnfinished moves every PENDING or RUNNING job to FAILED with the
	// given message and returns the affected jobs.
	FailUnfinished(ctx context.Context, errorMessage string) ([]*domain.Job, error)

	// DeleteOlderThan removes jobs created at or before cutoff, with their
	// results, and returns how many jobs were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteFailed removes the listed jobs that are FAILED. IDs in any other
	// status are left alone.
	DeleteFailed(ctx context.Context, ids []string) (int64, error)
}

// ResultStore holds the outputs of finished jobs. Results are removed
// together with their job.
type ResultStore interface {
	// SaveTranscription stores the merged transcript of an AUDIO job,
	// replacing any earlier one.
	SaveTranscription(ctx context.Context, jobID, userID string, utterances []domain.Utterance) error

	// TakeTranscription returns and deletes the transcript of jobID in one
	// operation. A second call returns ErrResultNotFound.
	TakeTranscription(ctx context.Context, jobID string) ([]domain.Utterance, error)

	// SaveAnalysis stores an analysis unless one already exists for the job.
	SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error

	// GetAnalysis returns the analysis of jobID.
	// Returns ErrResultNotFound if there is none.
	GetAnalysis(ctx context.Context, jobID string) (*domain.AnalysisResult, error)
}
