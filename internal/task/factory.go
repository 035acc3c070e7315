package task

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// Common errors
var (
	ErrNilBackend = errors.New("backend cannot be nil")
	ErrNilCaller  = errors.New("retry caller cannot be nil")
	ErrNilResults = errors.New("result store cannot be nil")
	ErrNilAudio   = errors.New("audio artifact cannot be nil")
	ErrWrongType  = errors.New("job type does not match task")
)

// Factory builds the tasks for submitted jobs from shared dependencies.
type Factory struct {
	backend Backend
	caller  *retry.Caller
	results store.ResultStore
	archive Archiver
	logger  *slog.Logger
}

// NewFactory creates a Factory. archive may be nil.
func NewFactory(
	backend Backend,
	caller *retry.Caller,
	results store.ResultStore,
	archive Archiver,
	logger *slog.Logger,
) (*Factory, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if caller == nil {
		return nil, ErrNilCaller
	}
	if results == nil {
		return nil, ErrNilResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		backend: backend,
		caller:  caller,
		results: results,
		archive: archive,
		logger:  logger.With("component", "task_factory"),
	}, nil
}

// NewAudioTask creates the transcription task of an AUDIO job. The task
// takes ownership of audio.
func (f *Factory) NewAudioTask(job *domain.Job, audio AudioArtifact) (*AudioTask, error) {
	if audio == nil {
		return nil, ErrNilAudio
	}
	if job.Type != domain.JobTypeAudio {
		return nil, fmt.Errorf("%w: %s job for audio task", ErrWrongType, job.Type)
	}
	return &AudioTask{
		jobID:   job.ID,
		userID:  job.UserID,
		audio:   audio,
		backend: f.backend,
		caller:  f.caller,
		results: f.results,
		archive: f.archive,
		logger:  f.logger.With("job_id", job.ID, "job_type", job.Type),
	}, nil
}

// NewAnalysisTask creates the analysis task of a TASK job.
func (f *Factory) NewAnalysisTask(job *domain.Job, text string) (*AnalysisTask, error) {
	if job.Type != domain.JobTypeTask {
		return nil, fmt.Errorf("%w: %s job for analysis task", ErrWrongType, job.Type)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("description", "is required", domain.ErrEmptyContent)
	}
	return &AnalysisTask{
		jobID:    job.ID,
		userID:   job.UserID,
		metadata: job.Metadata,
		text:     text,
		backend:  f.backend,
		caller:   f.caller,
		results:  f.results,
		logger:   f.logger.With("job_id", job.ID, "job_type", job.Type),
	}, nil
}
