package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/events"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// RestartErrorMessage is stored on jobs found unfinished at startup.
const RestartErrorMessage = "interrupted by service restart"

var (
	// ErrAlreadyDispatched is returned when a job is already queued or running.
	ErrAlreadyDispatched = errors.New("job is already dispatched")

	// ErrNotDispatchable is returned for jobs that are not PENDING.
	ErrNotDispatchable = errors.New("job is not pending")
)

// Discarder is implemented by tasks holding resources that must be released
// when the task will never run.
type Discarder interface {
	Discard()
}

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// EnqueueTimeout bounds how long Submit waits for queue capacity.
	// Zero means do not wait.
	EnqueueTimeout time.Duration

	// StatusRetryDelay is the first wait before retrying a failed terminal
	// status write. Zero selects DefaultStatusRetryDelay.
	StatusRetryDelay time.Duration
}

const (
	// DefaultStatusRetryDelay is the default StatusRetryDelay.
	DefaultStatusRetryDelay = 200 * time.Millisecond

	// terminalWriteAttempts bounds the tries of a terminal status write.
	terminalWriteAttempts = 5
)

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:    4,
		QueueSize:      100,
		EnqueueTimeout: 2 * time.Second,
	}
}

// TaskRunner owns job execution. It dispatches tasks onto a bounded queue
// consumed by a fixed-size worker pool and performs every status write of a
// dispatched job: RUNNING before the task starts, then exactly one terminal
// status.
type TaskRunner struct {
	store   store.JobStore
	emitter events.EventEmitter
	queue   *TaskQueue
	pool    *WorkerPool
	config  TaskRunnerConfig
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewTaskRunner creates a new TaskRunner.
// A nil emitter discards events.
func NewTaskRunner(
	jobStore store.JobStore,
	emitter events.EventEmitter,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if config.StatusRetryDelay <= 0 {
		config.StatusRetryDelay = DefaultStatusRetryDelay
	}
	logger = logger.With("component", "task_runner")

	r := &TaskRunner{
		store:    jobStore,
		emitter:  emitter,
		queue:    NewTaskQueue(config.QueueSize, logger),
		config:   config,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.processTask, logger)
	return r
}

// Start fails the jobs a previous process left unfinished and starts the
// workers. Orphaned jobs are never re-dispatched.
func (r *TaskRunner) Start(ctx context.Context) error {
	orphaned, err := r.store.FailUnfinished(ctx, RestartErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to recover unfinished jobs: %w", err)
	}
	if len(orphaned) > 0 {
		r.logger.Warn("marked unfinished jobs as failed", "count", len(orphaned))
	}
	for _, job := range orphaned {
		r.emit(ctx, job)
	}

	r.pool.Start()
	return nil
}

// Submit dispatches task. The job must exist and be PENDING.
//
// When the queue stays full for EnqueueTimeout, or is closed, the job is
// marked FAILED and the enqueue error is returned. A rejected task is
// discarded, except on ErrAlreadyDispatched where the running task of the
// same job may share its resources.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	id := task.JobID()
	if !r.acquire(id) {
		return fmt.Errorf("%w: %s", ErrAlreadyDispatched, id)
	}

	job, err := r.store.Get(ctx, id)
	if err != nil {
		r.release(id)
		Discard(task)
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job.Status != domain.JobStatusPending {
		r.release(id)
		Discard(task)
		return fmt.Errorf("%w: %s is %s", ErrNotDispatchable, id, job.Status)
	}

	enqueueCtx := ctx
	if r.config.EnqueueTimeout > 0 {
		var cancel context.CancelFunc
		enqueueCtx, cancel = context.WithTimeout(ctx, r.config.EnqueueTimeout)
		defer cancel()
	}

	if err := r.queue.Enqueue(enqueueCtx, task); err != nil {
		r.release(id)
		Discard(task)

		message := err.Error()
		if errors.Is(err, ErrQueueFull) {
			message = ErrQueueFull.Error()
		}
		r.logger.Warn("job dispatch rejected", "job_id", id, "error", err)
		r.writeTerminal(context.WithoutCancel(ctx), id, domain.JobStatusFailed, message)
		return err
	}
	return nil
}

// Stop closes the queue and waits for the workers to drain it. If ctx
// expires first the in-flight tasks are cancelled and ctx.Err() is returned.
func (r *TaskRunner) Stop(ctx context.Context) error {
	r.queue.Close()
	if err := r.pool.Wait(ctx); err != nil {
		r.logger.Warn("task runner did not drain before deadline, cancelling in-flight tasks")
		r.pool.Abort()
		return err
	}
	r.pool.Abort()
	r.logger.Info("task runner stopped")
	return nil
}

// InFlight reports whether the job is queued or running.
func (r *TaskRunner) InFlight(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[jobID]
	return ok
}

// QueueLen returns the number of tasks waiting for a worker.
func (r *TaskRunner) QueueLen() int {
	return r.queue.Len()
}

func (r *TaskRunner) acquire(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[jobID]; busy {
		return false
	}
	r.inFlight[jobID] = struct{}{}
	return true
}

func (r *TaskRunner) release(jobID string) {
	r.mu.Lock()
	delete(r.inFlight, jobID)
	r.mu.Unlock()
}

// Discard releases the resources of a task that will never run.
func Discard(task Task) {
	if d, ok := task.(Discarder); ok {
		d.Discard()
	}
}

// processTask handles execution of a single task
func (r *TaskRunner) processTask(ctx context.Context, task Task, workerID int) {
	id := task.JobID()
	defer r.release(id)

	log := r.logger.With(
		"job_id", id,
		"job_type", task.Type(),
		"worker_id", workerID,
	)
	ctx = logger.WithLogger(ctx, log)

	if ctx.Err() != nil {
		Discard(task)
		r.writeTerminal(context.WithoutCancel(ctx), id, domain.JobStatusFailed, "service is shutting down")
		return
	}

	if _, ok := r.writeStatus(ctx, id, domain.JobStatusRunning, ""); !ok {
		Discard(task)
		r.writeTerminal(context.WithoutCancel(ctx), id, domain.JobStatusFailed, "job could not be started")
		return
	}

	log.Info("processing job")
	started := time.Now()
	err := r.execute(ctx, task, log)

	// The terminal write must land even when the run context was cancelled.
	writeCtx := context.WithoutCancel(ctx)
	if err != nil {
		message := strings.TrimSpace(err.Error())
		if message == "" {
			message = "job failed"
		}
		log.Error("job failed", "error", err, "duration", time.Since(started))
		r.writeTerminal(writeCtx, id, domain.JobStatusFailed, message)
		return
	}

	log.Info("job succeeded", "duration", time.Since(started))
	r.writeTerminal(writeCtx, id, domain.JobStatusSucceeded, "")
}

// execute runs the task, converting a panic into an error.
func (r *TaskRunner) execute(ctx context.Context, task Task, log *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return task.Execute(ctx)
}

// writeStatus persists a status change and emits the resulting event.
func (r *TaskRunner) writeStatus(
	ctx context.Context,
	id string,
	status domain.JobStatus,
	message string,
) (*domain.Job, bool) {
	job, err := r.store.UpdateStatus(ctx, id, status, message)
	if err != nil {
		logger.FromContextOrDefault(ctx, r.logger).Error("failed to update job status",
			"job_id", id,
			"status", status,
			"error", err)
		return nil, false
	}
	r.emit(ctx, job)
	return job, true
}

// writeTerminal persists a terminal status, retrying transient store
// failures with exponential backoff. A missing job or a rejected transition
// is not retried.
func (r *TaskRunner) writeTerminal(
	ctx context.Context,
	id string,
	status domain.JobStatus,
	message string,
) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	operation := func() (*domain.Job, error) {
		job, err := r.store.UpdateStatus(ctx, id, status, message)
		if err == nil {
			return job, nil
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.StatusRetryDelay
	b.MaxInterval = 8 * r.config.StatusRetryDelay

	job, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(terminalWriteAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Warn("terminal status write failed, retrying",
				"job_id", id,
				"status", status,
				"delay", delay,
				"error", err)
		}),
	)
	if err != nil {
		log.Error("failed to write terminal job status",
			"job_id", id,
			"status", status,
			"error", err)
		return
	}
	r.emit(ctx, job)
}

func (r *TaskRunner) emit(ctx context.Context, job *domain.Job) {
	if err := r.emitter.EmitEvent(ctx, events.NewJobEvent(job)); err != nil {
		r.logger.Warn("failed to emit job event", "job_id", job.ID, "error", err)
	}
}
