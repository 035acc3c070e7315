package task

import (
	"context"
	"io"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// Task represents a unit of background work bound to one job.
// Tasks never write job status themselves; the runner does that around
// Execute.
type Task interface {
	// JobID returns the identifier of the job this task works on
	JobID() string

	// Type returns the job type the task handles
	Type() domain.JobType

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// AudioSource is an ingested audio payload that can be read any number of
// times, once per backend attempt.
type AudioSource interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

// AudioArtifact is an AudioSource backed by a temporary file.
type AudioArtifact interface {
	AudioSource
	// Remove deletes the payload. It never fails.
	Remove()
}

// Backend performs the AI work behind the jobs.
type Backend interface {
	// Transcribe returns the speaker-attributed utterances of the audio.
	Transcribe(ctx context.Context, audio AudioSource) ([]domain.Utterance, error)

	// Analyze summarises text and extracts its action items.
	Analyze(ctx context.Context, text string) (*domain.MeetingSummary, error)
}

// Archiver keeps a copy of ingested audio outside the process.
type Archiver interface {
	PutAudio(ctx context.Context, jobID string, audio AudioSource) error
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue
// allowing the runner to dispatch tasks for processing
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue, waiting until ctx is done for space.
	// Returns an error if the queue stayed full or is closed
	Enqueue(ctx context.Context, task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}
