package task

import (
	"context"
	"sync"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// MockTask is a simple implementation of the Task interface for testing
type MockTask struct {
	ID        string
	JobType   domain.JobType
	ExecuteFn func(ctx context.Context) error

	mu        sync.Mutex
	discarded bool
}

// NewMockTask creates a new MockTask for the given job that succeeds
func NewMockTask(jobID string, jobType domain.JobType) *MockTask {
	return &MockTask{
		ID:        jobID,
		JobType:   jobType,
		ExecuteFn: func(ctx context.Context) error { return nil },
	}
}

// JobID returns the job the task works on
func (t *MockTask) JobID() string {
	return t.ID
}

// Type returns the job type
func (t *MockTask) Type() domain.JobType {
	return t.JobType
}

// Execute runs the task logic
func (t *MockTask) Execute(ctx context.Context) error {
	return t.ExecuteFn(ctx)
}

// Discard records that the runner dropped the task
func (t *MockTask) Discard() {
	t.mu.Lock()
	t.discarded = true
	t.mu.Unlock()
}

// Discarded reports whether Discard was called
func (t *MockTask) Discarded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

// MockBackend is a configurable Backend for testing
type MockBackend struct {
	TranscribeFn func(ctx context.Context, audio AudioSource) ([]domain.Utterance, error)
	AnalyzeFn    func(ctx context.Context, text string) (*domain.MeetingSummary, error)

	mu              sync.Mutex
	TranscribeCalls int
	AnalyzeCalls    int
}

var _ Backend = (*MockBackend)(nil)

// Transcribe calls TranscribeFn, or returns no utterances if it is nil
func (m *MockBackend) Transcribe(ctx context.Context, audio AudioSource) ([]domain.Utterance, error) {
	m.mu.Lock()
	m.TranscribeCalls++
	m.mu.Unlock()
	if m.TranscribeFn == nil {
		return []domain.Utterance{}, nil
	}
	return m.TranscribeFn(ctx, audio)
}

// Analyze calls AnalyzeFn, or returns an empty summary if it is nil
func (m *MockBackend) Analyze(ctx context.Context, text string) (*domain.MeetingSummary, error) {
	m.mu.Lock()
	m.AnalyzeCalls++
	m.mu.Unlock()
	if m.AnalyzeFn == nil {
		return &domain.MeetingSummary{Tasks: []domain.TaskItem{}}, nil
	}
	return m.AnalyzeFn(ctx, text)
}

// Calls returns the number of Transcribe and Analyze calls so far
func (m *MockBackend) Calls() (transcribe, analyze int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TranscribeCalls, m.AnalyzeCalls
}
