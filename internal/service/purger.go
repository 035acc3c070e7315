package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// purgeTimeout bounds one DeleteFailed call.
const purgeTimeout = 30 * time.Second

// FailedJobPurger deletes FAILED jobs in the background. Batches are offered
// without blocking and handled by a single goroutine; the store's status
// guard keeps jobs that are no longer FAILED.
type FailedJobPurger struct {
	jobs   store.JobStore
	queue  chan []string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewFailedJobPurger creates a purger whose queue holds queueSize batches.
func NewFailedJobPurger(jobs store.JobStore, queueSize int, logger *slog.Logger) *FailedJobPurger {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &FailedJobPurger{
		jobs:   jobs,
		queue:  make(chan []string, queueSize),
		logger: logger.With("component", "failed_job_purger"),
		done:   make(chan struct{}),
	}
}

// Start launches the purge goroutine.
func (p *FailedJobPurger) Start() {
	go p.run()
}

// Offer queues ids for deletion. It never blocks; it reports false when the
// batch was dropped because the queue is full or stopped.
func (p *FailedJobPurger) Offer(ids []string) bool {
	if len(ids) == 0 {
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	batch := append([]string(nil), ids...)
	select {
	case p.queue <- batch:
		return true
	default:
		p.logger.Warn("purge queue is full, dropping batch", "job_count", len(ids))
		return false
	}
}

// Stop closes the queue and waits for queued batches to be handled or ctx
// to expire.
func (p *FailedJobPurger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FailedJobPurger) run() {
	defer close(p.done)
	for ids := range p.queue {
		p.purge(ids)
	}
}

func (p *FailedJobPurger) purge(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := p.jobs.DeleteFailed(ctx, ids)
	if err != nil {
		p.logger.Error("failed to purge failed jobs", "error", err, "job_count", len(ids))
		return
	}
	p.logger.Info("purged failed jobs", "requested", len(ids), "deleted", n)
}
