package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// Store keeps jobs and results in maps guarded by one mutex. Every method
// hands out copies so callers never alias stored records.
type Store struct {
	mu             sync.RWMutex
	jobs           map[string]domain.Job
	transcriptions map[string][]domain.Utterance
	analyses       map[string]domain.AnalysisResult
	logger         *slog.Logger
	now            func() time.Time
}

var (
	_ store.JobStore    = (*Store)(nil)
	_ store.ResultStore = (*Store)(nil)
)

// NewStore creates an empty Store.
// If logger is nil, a default logger will be used.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		jobs:           make(map[string]domain.Job),
		transcriptions: make(map[string][]domain.Utterance),
		analyses:       make(map[string]domain.AnalysisResult),
		logger:         logger.With(slog.String("component", "memory_store")),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func copyJob(j domain.Job) *domain.Job {
	if j.Metadata.Geo != nil {
		geo := *j.Metadata.Geo
		j.Metadata.Geo = &geo
	}
	return &j
}

// Create implements store.JobStore.Create.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = *copyJob(*job)

	logger.FromContextOrDefault(ctx, s.logger).Debug("job created",
		slog.String("job_id", job.ID),
		slog.String("type", string(job.Type)))
	return nil
}

// Get implements store.JobStore.Get.
func (s *Store) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// List implements store.JobStore.List.
func (s *Store) List(_ context.Context, ownerID string) ([]*domain.Job, error) {
	s.mu.RLock()
	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if ownerID == "" || job.UserID == ownerID {
			jobs = append(jobs, copyJob(job))
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// UpdateStatus implements store.JobStore.UpdateStatus.
func (s *Store) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.JobStatus,
	errorMessage string,
) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}

	from := job.Status
	if err := domain.ValidateTransition(from, status, errorMessage); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.FromContextOrDefault(ctx, s.logger).Warn("rejected job status transition",
				slog.String("job_id", id),
				slog.String("from", string(from)),
				slog.String("to", string(status)))
			return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, status)
		}
		return nil, err
	}

	job.Status = status
	job.ErrorMessage = domain.NormalizeErrorMessage(status, errorMessage)
	job.UpdatedAt = s.now()
	s.jobs[id] = job

	return copyJob(job), nil
}

// FailUnfinished implements store.JobStore.FailUnfinished.
func (s *Store) FailUnfinished(_ context.Context, errorMessage string) ([]*domain.Job, error) {
	if strings.TrimSpace(errorMessage) == "" {
		return nil, domain.NewValidationError("error_message", "is required for FAILED", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*domain.Job
	now := s.now()
	for id, job := range s.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = errorMessage
		job.UpdatedAt = now
		s.jobs[id] = job
		failed = append(failed, copyJob(job))
	}
	return failed, nil
}

// DeleteOlderThan implements store.JobStore.DeleteOlderThan.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, job := range s.jobs {
		if job.CreatedAt.After(cutoff) {
			continue
		}
		s.deleteLocked(id)
		n++
	}
	return n, nil
}

// DeleteFailed implements store.JobStore.DeleteFailed.
func (s *Store) DeleteFailed(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		job, ok := s.jobs[id]
		if !ok || job.Status != domain.JobStatusFailed {
			continue
		}
		s.deleteLocked(id)
		n++
	}
	return n, nil
}

// deleteLocked removes a job and its results. s.mu must be held.
func (s *Store) deleteLocked(id string) {
	delete(s.jobs, id)
	delete(s.transcriptions, id)
	delete(s.analyses, id)
}

// SaveTranscription implements store.ResultStore.SaveTranscription.
func (s *Store) SaveTranscription(_ context.Context, jobID, _ string, utterances []domain.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: transcription for unknown job %s", store.ErrJobNotFound, jobID)
	}
	s.transcriptions[jobID] = append([]domain.Utterance{}, utterances...)
	return nil
}

// TakeTranscription implements store.ResultStore.TakeTranscription.
func (s *Store) TakeTranscription(_ context.Context, jobID string) ([]domain.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	utterances, ok := s.transcriptions[jobID]
	if !ok {
		return nil, store.ErrResultNotFound
	}
	delete(s.transcriptions, jobID)
	return utterances, nil
}

// SaveAnalysis implements store.ResultStore.SaveAnalysis.
func (s *Store) SaveAnalysis(_ context.Context, result *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[result.JobID]; !ok {
		return fmt.Errorf("%w: analysis for unknown job %s", store.ErrJobNotFound, result.JobID)
	}
	if _, exists := s.analyses[result.JobID]; exists {
		return nil
	}
	stored := *result
	stored.Tasks = append([]domain.TaskItem{}, result.Tasks...)
	s.analyses[result.JobID] = stored
	return nil
}

// GetAnalysis implements store.ResultStore.GetAnalysis.
func (s *Store) GetAnalysis(_ context.Context, jobID string) (*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.analyses[jobID]
	if !ok {
		return nil, store.ErrResultNotFound
	}
	result.Tasks = append([]domain.TaskItem{}, result.Tasks...)
	return &result, nil
}
