package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/config"
	"github.com/taskconvertai/taskconvert-api/internal/events"
	"github.com/taskconvertai/taskconvert-api/internal/ingest"
	"github.com/taskconvertai/taskconvert-api/internal/platform/aiclient"
	"github.com/taskconvertai/taskconvert-api/internal/platform/amqp"
	"github.com/taskconvertai/taskconvert-api/internal/platform/gemini"
	"github.com/taskconvertai/taskconvert-api/internal/platform/memory"
	"github.com/taskconvertai/taskconvert-api/internal/platform/objectstore"
	"github.com/taskconvertai/taskconvert-api/internal/platform/postgres"
	"github.com/taskconvertai/taskconvert-api/internal/retention"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/service/auth"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// shutdownGrace bounds the drain of background workers during cleanup.
const shutdownGrace = 30 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jobStore    store.JobStore
	resultStore store.ResultStore

	// jwtService is nil when authentication is disabled.
	jwtService auth.JWTService
	backend    task.Backend
	archive    *objectstore.Archive
	publisher  *amqp.Publisher

	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner
	purger       *service.FailedJobPurger
	jobService   *service.JobService
	ingester     *ingest.Ingester
	sweeper      *retention.Sweeper

	startWorkers bool
	// running is set once the background workers have been launched.
	running bool

	cleanupOnce sync.Once
}

type appOption func(*application)

// withoutWorkers builds the application without starting the runner, the
// purger or the sweeper loop. Used by one-shot commands.
func withoutWorkers() appOption {
	return func(app *application) { app.startWorkers = false }
}

// withBackend replaces the configured AI backend.
func withBackend(backend task.Backend) appOption {
	return func(app *application) { app.backend = backend }
}

// newApplication creates a new application instance with all dependencies
// initialized. Background workers are started unless withoutWorkers is given.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	opts ...appOption,
) (_ *application, err error) {
	app := &application{
		config:       cfg,
		logger:       logger,
		startWorkers: true,
	}
	for _, opt := range opts {
		opt(app)
	}

	defer func() {
		if err != nil {
			app.cleanup(context.Background())
		}
	}()

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	if cfg.Auth.Enabled() {
		app.jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		logger.Info("JWT authentication enabled",
			"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	}

	if app.backend == nil {
		app.backend, err = setupBackend(ctx, cfg.AI, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Archive.Enabled() {
		app.archive, err = objectstore.New(cfg.Archive, logger)
		if err != nil {
			return nil, err
		}
		if err := app.archive.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("audio archive enabled", "bucket", cfg.Archive.Bucket)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	if cfg.Events.Enabled() {
		app.publisher, err = amqp.Connect(ctx, cfg.Events, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		app.eventEmitter.RegisterHandler(app.publisher)
		logger.Info("job events published to broker", "exchange", cfg.Events.Exchange)
	}

	if err := app.setupJobs(); err != nil {
		return nil, err
	}

	if app.startWorkers {
		app.purger.Start()
		app.running = true
		if err := app.taskRunner.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start task runner: %w", err)
		}
		if err := app.sweeper.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start retention sweeper: %w", err)
		}
	}

	logger.Info("application initialized successfully")
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Database.Backend {
	case config.BackendMemory:
		st := memory.NewStore(app.logger)
		app.jobStore, app.resultStore = st, st
		app.logger.Warn("using in-memory job store; jobs do not survive restarts")
		return nil

	case config.BackendPostgres:
		db, err := setupAppDatabase(ctx, app.config, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		app.jobStore = postgres.NewPostgresJobStore(db, app.logger)
		app.resultStore = postgres.NewPostgresResultStore(db, app.logger)
		return nil

	default:
		return fmt.Errorf("unknown database backend %q", app.config.Database.Backend)
	}
}

// setupBackend creates the AI backend selected by cfg.Provider.
func setupBackend(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (task.Backend, error) {
	switch cfg.Provider {
	case config.ProviderHTTP:
		client, err := aiclient.NewClient(aiclient.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.RequestTimeout,
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AI client: %w", err)
		}
		return client, nil

	case config.ProviderGemini:
		backend, err := gemini.NewBackend(ctx, gemini.Config{
			APIKey:    cfg.GeminiAPIKey,
			ModelName: cfg.ModelName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini backend: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

func (app *application) setupJobs() error {
	cfg := app.config

	caller := retry.NewCaller(retry.Config{
		MaxAttempts: cfg.AI.MaxAttempts,
		BaseDelay:   cfg.AI.BaseDelay,
	}, app.logger)

	var archiver task.Archiver
	var pruner retention.ArchivePruner
	if app.archive != nil {
		archiver, pruner = app.archive, app.archive
	}

	factory, err := task.NewFactory(app.backend, caller, app.resultStore, archiver, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task factory: %w", err)
	}

	app.taskRunner = task.NewTaskRunner(app.jobStore, app.eventEmitter, task.TaskRunnerConfig{
		WorkerCount:    cfg.Jobs.WorkerCount,
		QueueSize:      cfg.Jobs.QueueSize,
		EnqueueTimeout: cfg.Jobs.EnqueueTimeout,
	}, app.logger)

	app.purger = service.NewFailedJobPurger(app.jobStore, cfg.Jobs.PurgeQueueSize, app.logger)

	app.jobService, err = service.NewJobService(
		app.jobStore,
		app.resultStore,
		app.taskRunner,
		factory,
		app.purger,
		service.JobServiceConfig{PurgeFailedOnList: cfg.Jobs.PurgeFailedOnList},
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create job service: %w", err)
	}

	app.ingester = ingest.NewIngester(ingest.Config{
		Dir:            cfg.Ingest.Dir,
		MaxBytes:       cfg.Ingest.MaxBytes,
		ChunkSize:      cfg.Ingest.ChunkSize,
		StallThreshold: cfg.Ingest.StallThreshold,
		PollBackoff:    cfg.Ingest.PollBackoff,
		HintWindow:     cfg.Ingest.HintWindow,
	}, app.logger)

	app.sweeper = retention.NewSweeper(app.jobService, pruner, retention.Config{
		Interval: cfg.Cleanup.Interval(),
		MaxAge:   cfg.Cleanup.MaxAge(),
	}, app.logger)

	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. It is safe
// on a partially initialized application and runs at most once.
func (app *application) cleanup(ctx context.Context) {
	app.cleanupOnce.Do(func() { app.release(ctx) })
}

func (app *application) release(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	if app.running {
		if err := app.taskRunner.Stop(ctx); err != nil {
			app.logger.Error("task runner did not stop cleanly", "error", err)
		}
	}

	if app.running {
		if err := app.purger.Stop(ctx); err != nil {
			app.logger.Error("failed job purger did not stop cleanly", "error", err)
		}
	}

	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing resources", "error", err)
	}

	app.logger.Info("application shutdown completed")
}
