package mocks

import (
	"context"
	"sync"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// MockJobService is a configurable stand-in for service.JobService.
// Unset functions return Job, Jobs and Result with Err, except GetJob and
// GetResult, which report store.ErrJobNotFound when Job or Result is nil.
type MockJobService struct {
	CreateAudioJobFn func(ctx context.Context, ownerID string, audio task.AudioArtifact) (*domain.Job, error)
	CreateTaskJobFn  func(ctx context.Context, ownerID string, req domain.TaskRequest) (*domain.Job, error)
	GetJobFn         func(ctx context.Context, id string) (*domain.Job, error)
	ListJobsFn       func(ctx context.Context, ownerID string) ([]*domain.Job, error)
	GetResultFn      func(ctx context.Context, id string) (service.JobResult, error)

	Job    *domain.Job
	Jobs   []*domain.Job
	Result service.JobResult
	Err    error

	mu    sync.Mutex
	calls []string
}

func (m *MockJobService) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

// Calls returns the names of the methods called so far, in order.
func (m *MockJobService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CreateAudioJob removes audio when no function is set, as the real
// service does on failure.
func (m *MockJobService) CreateAudioJob(ctx context.Context, ownerID string, audio task.AudioArtifact) (*domain.Job, error) {
	m.record("CreateAudioJob")
	if m.CreateAudioJobFn != nil {
		return m.CreateAudioJobFn(ctx, ownerID, audio)
	}
	audio.Remove()
	return m.Job, m.Err
}

// CreateTaskJob implements the handler's job service.
func (m *MockJobService) CreateTaskJob(ctx context.Context, ownerID string, req domain.TaskRequest) (*domain.Job, error) {
	m.record("CreateTaskJob")
	if m.CreateTaskJobFn != nil {
		return m.CreateTaskJobFn(ctx, ownerID, req)
	}
	return m.Job, m.Err
}

// GetJob implements the handler's job service.
func (m *MockJobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	m.record("GetJob")
	if m.GetJobFn != nil {
		return m.GetJobFn(ctx, id)
	}
	if m.Err == nil && m.Job == nil {
		return nil, store.ErrJobNotFound
	}
	return m.Job, m.Err
}

// ListJobs implements the handler's job service.
func (m *MockJobService) ListJobs(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	m.record("ListJobs")
	if m.ListJobsFn != nil {
		return m.ListJobsFn(ctx, ownerID)
	}
	return m.Jobs, m.Err
}

// GetResult implements the handler's job service.
func (m *MockJobService) GetResult(ctx context.Context, id string) (service.JobResult, error) {
	m.record("GetResult")
	if m.GetResultFn != nil {
		return m.GetResultFn(ctx, id)
	}
	if m.Err == nil && m.Result == nil {
		return nil, store.ErrResultNotFound
	}
	return m.Result, m.Err
}
