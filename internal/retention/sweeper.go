package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval and DefaultMaxAge apply when Config leaves them unset.
const (
	DefaultInterval = 6 * time.Hour
	DefaultMaxAge   = 24 * time.Hour
)

// ErrAlreadyStarted is returned by Start on a running sweeper.
var ErrAlreadyStarted = errors.New("sweeper already started")

// JobDeleter removes jobs created at or before now - maxAge.
type JobDeleter interface {
	DeleteOldJobs(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ArchivePruner removes archived audio older than cutoff.
type ArchivePruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Config controls the sweep schedule.
// A zero MaxAge deletes every job that exists when the sweep runs.
type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// Report summarises one sweep.
type Report struct {
	JobsDeleted   int64
	ObjectsPruned int
}

// Sweeper periodically deletes old jobs and, when an archive is configured,
// the archived audio of the same age.
type Sweeper struct {
	jobs    JobDeleter
	archive ArchivePruner
	config  Config
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. archive may be nil.
func NewSweeper(jobs JobDeleter, archive ArchivePruner, cfg Config, logger *slog.Logger) *Sweeper {
	if jobs == nil {
		panic("jobs cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Sweeper{
		jobs:    jobs,
		archive: archive,
		config:  cfg,
		logger:  logger.With("component", "retention_sweeper"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs a single sweep. A failed archive prune is logged and
// does not fail the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	n, err := s.jobs.DeleteOldJobs(ctx, s.config.MaxAge)
	if err != nil {
		s.logger.Error("failed to delete old jobs", "error", err, "max_age", s.config.MaxAge)
		return report, err
	}
	report.JobsDeleted = n
	s.logger.Info("deleted old jobs", "count", n, "max_age", s.config.MaxAge)

	if s.archive != nil {
		pruned, err := s.archive.PruneOlderThan(ctx, s.now().Add(-s.config.MaxAge))
		if err != nil {
			s.logger.Warn("failed to prune archived audio", "error", err)
		} else {
			report.ObjectsPruned = pruned
			s.logger.Info("pruned archived audio", "count", pruned)
		}
	}

	return report, nil
}

// Start runs a sweep immediately and then every Interval until Stop is
// called or ctx is cancelled. Sweep errors are logged and the loop continues.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.done)

	s.logger.Info("retention sweeper started",
		"interval", s.config.Interval,
		"max_age", s.config.MaxAge)
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop and waits for an in-progress sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("retention sweeper stopped")
}
