package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskconvertai/taskconvert-api/internal/config"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/platform/postgres"
	"github.com/taskconvertai/taskconvert-api/internal/service/auth"
)

// newRootCmd builds the command tree. Every subcommand loads the
// configuration and sets up logging before it runs.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "taskconvert-api",
		Short:         "Audio transcription and task extraction service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default ./config.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := loadAppConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		log, err := logger.Setup(cfg.Server)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
		}
		return cfg, log, nil
	}

	rootCmd.AddCommand(
		serveCmd(load),
		migrateCmd(load),
		sweepCmd(load),
		tokenCmd(load),
	)
	return rootCmd
}

type loaderFunc func() (*config.Config, *slog.Logger, error)

// loadAppConfig loads the configuration from the environment and the
// optional config file.
func loadAppConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			log.Info("server configuration loaded",
				"port", cfg.Server.Port,
				"log_level", cfg.Server.LogLevel,
				"database_backend", cfg.Database.Backend,
				"ai_provider", cfg.AI.Provider,
				"auth_enabled", cfg.Auth.Enabled(),
				"archive_enabled", cfg.Archive.Enabled(),
				"events_enabled", cfg.Events.Enabled())

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
}

func migrateCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|reset]",
		Short:     "Apply or inspect the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus, postgres.MigrateReset},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}

			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Backend != config.BackendPostgres {
				return fmt.Errorf("migrations require the %s backend, configured %q",
					config.BackendPostgres, cfg.Database.Backend)
			}

			db, err := setupAppDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error("error closing database connection", "error", err)
				}
			}()

			return postgres.Migrate(cmd.Context(), db, command, log)
		},
	}
}

func sweepCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log, withoutWorkers())
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup(ctx)

			report, err := app.sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d jobs, pruned %d archived objects\n",
				report.JobsDeleted, report.ObjectsPruned)
			return nil
		},
	}
}

func tokenCmd(load loaderFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Issue a bearer token for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled() {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}

			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return fmt.Errorf("failed to initialize JWT service: %w", err)
			}
			token, err := jwtService.GenerateToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
