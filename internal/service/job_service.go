package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// DispatchFailedMessage is stored on jobs the runner refused to accept.
const DispatchFailedMessage = "job could not be dispatched"

// TaskRunner defines the interface for dispatching background tasks
type TaskRunner interface {
	// Submit adds a task to the processing queue
	Submit(ctx context.Context, task task.Task) error
}

// TaskFactory builds the task of a newly created job.
type TaskFactory interface {
	NewAudioTask(job *domain.Job, audio task.AudioArtifact) (*task.AudioTask, error)
	NewAnalysisTask(job *domain.Job, text string) (*task.AnalysisTask, error)
}

// JobServiceConfig holds the policies of the job service.
type JobServiceConfig struct {
	// PurgeFailedOnList offers the FAILED jobs of an owner-scoped listing
	// to the purger.
	PurgeFailedOnList bool
}

// JobService implements the job use cases.
type JobService struct {
	jobs    store.JobStore
	results store.ResultStore
	runner  TaskRunner
	factory TaskFactory
	purger  *FailedJobPurger
	config  JobServiceConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewJobService creates a JobService.
// purger may be nil, which disables purge-on-list.
func NewJobService(
	jobs store.JobStore,
	results store.ResultStore,
	runner TaskRunner,
	factory TaskFactory,
	purger *FailedJobPurger,
	config JobServiceConfig,
	logger *slog.Logger,
) (*JobService, error) {
	if jobs == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "job store cannot be nil"}
	}
	if results == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "result store cannot be nil"}
	}
	if runner == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "task runner cannot be nil"}
	}
	if factory == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "task factory cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		jobs:    jobs,
		results: results,
		runner:  runner,
		factory: factory,
		purger:  purger,
		config:  config,
		logger:  logger.With("component", "job_service"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return domain.NewValidationError("userID", "is required", ErrOwnerRequired)
	}
	return nil
}

// CreateAudioJob creates an AUDIO job for an ingested recording and
// dispatches it. The service takes ownership of audio: it is removed on
// every failure path here and by the task otherwise.
func (s *JobService) CreateAudioJob(
	ctx context.Context,
	ownerID string,
	audio task.AudioArtifact,
) (*domain.Job, error) {
	if err := requireOwner(ownerID); err != nil {
		audio.Remove()
		return nil, err
	}

	job, err := domain.NewJob(ownerID, domain.JobTypeAudio, domain.JobMetadata{})
	if err != nil {
		audio.Remove()
		return nil, err
	}

	t, err := s.factory.NewAudioTask(job, audio)
	if err != nil {
		audio.Remove()
		return nil, NewJobServiceError("create_audio_job", "failed to build task", err)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		audio.Remove()
		return nil, NewJobServiceError("create_audio_job", "failed to save job", err)
	}

	return s.dispatch(ctx, job, t)
}

// CreateTaskJob creates a TASK job analysing req.Description and
// dispatches it.
func (s *JobService) CreateTaskJob(
	ctx context.Context,
	ownerID string,
	req domain.TaskRequest,
) (*domain.Job, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(ownerID, domain.JobTypeTask, req.Metadata())
	if err != nil {
		return nil, err
	}

	t, err := s.factory.NewAnalysisTask(job, req.Description)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, NewJobServiceError("create_task_job", "failed to save job", err)
	}

	return s.dispatch(ctx, job, t)
}

// dispatch submits t. A job rejected because the queue stayed full has
// already been marked FAILED by the runner and is returned without error.
func (s *JobService) dispatch(ctx context.Context, job *domain.Job, t task.Task) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("job_id", job.ID, "job_type", job.Type)

	err := s.runner.Submit(ctx, t)
	if err == nil {
		log.Info("job submitted", "user_id", job.UserID)
		return job, nil
	}

	if errors.Is(err, task.ErrQueueFull) || errors.Is(err, task.ErrQueueClosed) {
		log.Warn("job rejected by dispatcher", "error", err)
		current, getErr := s.jobs.Get(ctx, job.ID)
		if getErr != nil {
			return nil, NewJobServiceError("dispatch", "failed to reload rejected job", getErr)
		}
		return current, nil
	}

	log.Error("failed to dispatch job", "error", err)
	task.Discard(t)
	s.failUndispatched(context.WithoutCancel(ctx), job.ID, log)
	return nil, NewJobServiceError("dispatch", "failed to submit job", err)
}

// failUndispatched marks a job that was never queued as FAILED so it does
// not stay PENDING. A job another dispatch already moved on is left alone.
func (s *JobService) failUndispatched(ctx context.Context, id string, log *slog.Logger) {
	current, err := s.jobs.Get(ctx, id)
	if err != nil {
		log.Error("failed to reload undispatched job", "error", err)
		return
	}
	if current.Status != domain.JobStatusPending {
		return
	}
	if _, err := s.jobs.UpdateStatus(ctx, id, domain.JobStatusFailed, DispatchFailedMessage); err != nil {
		log.Error("failed to mark undispatched job as failed", "error", err)
	}
}

// GetJob returns the job with id.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, NewJobServiceError("get_job", "failed to load job", err)
	}
	return job, nil
}

// ListJobs returns the jobs of ownerID, newest first; an empty ownerID lists
// every job. An owner-scoped listing hands its FAILED jobs to the purger
// when that policy is enabled. Listing never waits for the purge.
func (s *JobService) ListJobs(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	jobs, err := s.jobs.List(ctx, ownerID)
	if err != nil {
		return nil, NewJobServiceError("list_jobs", "failed to list jobs", err)
	}

	if ownerID != "" && s.config.PurgeFailedOnList && s.purger != nil {
		var failed []string
		for _, job := range jobs {
			if job.Status == domain.JobStatusFailed {
				failed = append(failed, job.ID)
			}
		}
		if len(failed) > 0 {
			s.purger.Offer(failed)
		}
	}

	return jobs, nil
}

// DeleteOldJobs removes jobs created at or before now - maxAge together
// with their results.
func (s *JobService) DeleteOldJobs(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge < 0 {
		return 0, domain.NewValidationError("max_age", "must not be negative", domain.ErrValidation)
	}
	n, err := s.jobs.DeleteOlderThan(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, NewJobServiceError("delete_old_jobs", "failed to delete jobs", err)
	}
	return n, nil
}

// GetResult returns the result of a SUCCEEDED job. A transcript can be read
// once; a second read returns store.ErrResultNotFound. Analyses can be read
// repeatedly.
func (s *JobService) GetResult(ctx context.Context, id string) (JobResult, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, NewJobServiceError("get_result", "failed to load job", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotFinished, id, job.Status)
	}

	switch job.Type {
	case domain.JobTypeAudio:
		utterances, err := s.results.TakeTranscription(ctx, id)
		if err != nil {
			return nil, NewJobServiceError("get_result", "failed to load transcript", err)
		}
		return TranscriptResult{
			JobID:      id,
			Utterances: domain.PublicUtterances(utterances),
		}, nil

	case domain.JobTypeTask:
		analysis, err := s.results.GetAnalysis(ctx, id)
		if err != nil {
			return nil, NewJobServiceError("get_result", "failed to load analysis", err)
		}
		return AnalysisResultView{AnalysisResult: analysis.WithMetadata(job.Metadata)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, job.Type)
	}
}
