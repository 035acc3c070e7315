package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

const jobColumns = `job_id, user_id, type, status, created_at, updated_at, error_message,
		geo_latitude, geo_longitude, name, group_name, data`

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx returns a PostgresJobStore that runs its queries in tx.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) *PostgresJobStore {
	return &PostgresJobStore{db: tx, logger: s.logger}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		jobType      string
		status       string
		errorMessage sql.NullString
		lat, lon     sql.NullFloat64
		name         sql.NullString
		group        sql.NullString
		data         sql.NullString
	)

	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&jobType,
		&status,
		&job.CreatedAt,
		&job.UpdatedAt,
		&errorMessage,
		&lat,
		&lon,
		&name,
		&group,
		&data,
	); err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if lat.Valid && lon.Valid {
		job.Metadata.Geo = &domain.GeoLocation{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	job.Metadata.Name = nullableString(name)
	job.Metadata.Group = nullableString(group)
	job.Metadata.Data = nullableString(data)

	return &job, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optionalText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create implements store.JobStore.Create.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID))
		return err
	}

	var lat, lon sql.NullFloat64
	if geo := job.Metadata.Geo; geo != nil {
		lat = sql.NullFloat64{Float64: geo.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: geo.Longitude, Valid: true}
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.UserID,
		string(job.Type),
		string(job.Status),
		job.CreatedAt,
		job.UpdatedAt,
		optionalText(job.ErrorMessage),
		lat,
		lon,
		nullString(job.Metadata.Name),
		nullString(job.Metadata.Group),
		nullString(job.Metadata.Data),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrJobExists, job.ID)
		}
		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID))
		return store.NewStoreError("job", "create", "insert failed", MapError(err))
	}

	log.Debug("job created",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("type", string(job.Type)))
	return nil
}

// Get implements store.JobStore.Get.
func (s *PostgresJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get job",
			slog.String("error", err.Error()),
			slog.String("job_id", id))
		return nil, store.NewStoreError("job", "get", "query failed", err)
	}
	return job, nil
}

// List implements store.JobStore.List.
func (s *PostgresJobStore) List(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if ownerID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, job_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("job", "list", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewStoreError("job", "list", "scan failed", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", "list", "iteration failed", err)
	}
	return jobs, nil
}

// UpdateStatus implements store.JobStore.UpdateStatus.
//
// The current row is locked, the transition is checked against the domain
// state machine and the write happens in the same transaction. When the
// store already runs inside a caller's transaction that transaction is used.
func (s *PostgresJobStore) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.JobStatus,
	errorMessage string,
) (*domain.Job, error) {
	var updated *domain.Job

	apply := func(ctx context.Context, db store.DBTX) error {
		job, err := s.updateStatus(ctx, db, id, status, errorMessage)
		updated = job
		return err
	}

	var err error
	if beginner, ok := s.db.(store.TxBeginner); ok {
		err = store.RunInTransaction(ctx, beginner, func(ctx context.Context, tx *sql.Tx) error {
			return apply(ctx, tx)
		})
	} else {
		err = apply(ctx, s.db)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresJobStore) updateStatus(
	ctx context.Context,
	db store.DBTX,
	id string,
	status domain.JobStatus,
	errorMessage string,
) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var current string
	err := db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE job_id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "update_status", "lock failed", err)
	}

	if err := domain.ValidateTransition(domain.JobStatus(current), status, errorMessage); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn("rejected job status transition",
				slog.String("job_id", id),
				slog.String("from", current),
				slog.String("to", string(status)))
			return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
		}
		return nil, err
	}

	query := `
		UPDATE jobs
		SET status = $2, error_message = $3, updated_at = $4
		WHERE job_id = $1 AND status = $5
		RETURNING ` + jobColumns

	job, err := scanJob(db.QueryRowContext(
		ctx,
		query,
		id,
		string(status),
		optionalText(domain.NormalizeErrorMessage(status, errorMessage)),
		time.Now().UTC(),
		current,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: status of %s changed concurrently", store.ErrInvalidTransition, id)
		}
		log.Error("failed to update job status",
			slog.String("error", err.Error()),
			slog.String("job_id", id))
		return nil, store.NewStoreError("job", "update_status", "update failed", MapError(err))
	}

	log.Debug("job status updated",
		slog.String("job_id", id),
		slog.String("from", current),
		slog.String("to", string(status)))
	return job, nil
}

// FailUnfinished implements store.JobStore.FailUnfinished.
func (s *PostgresJobStore) FailUnfinished(ctx context.Context, errorMessage string) ([]*domain.Job, error) {
	if strings.TrimSpace(errorMessage) == "" {
		return nil, domain.NewValidationError("error_message", "is required for FAILED", domain.ErrValidation)
	}

	query := `
		UPDATE jobs
		SET status = 'FAILED', error_message = $1, updated_at = $2
		WHERE status IN ('PENDING', 'RUNNING')
		RETURNING ` + jobColumns

	rows, err := s.db.QueryContext(ctx, query, errorMessage, time.Now().UTC())
	if err != nil {
		return nil, store.NewStoreError("job", "fail_unfinished", "update failed", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewStoreError("job", "fail_unfinished", "scan failed", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", "fail_unfinished", "iteration failed", err)
	}
	return jobs, nil
}

// DeleteOlderThan implements store.JobStore.DeleteOlderThan.
// Results go with their job through ON DELETE CASCADE.
func (s *PostgresJobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at <= $1`, cutoff.UTC())
	if err != nil {
		return 0, store.NewStoreError("job", "delete_older_than", "delete failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteFailed implements store.JobStore.DeleteFailed.
func (s *PostgresJobStore) DeleteFailed(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `DELETE FROM jobs WHERE status = 'FAILED' AND job_id IN (` + strings.Join(placeholders, ", ") + `)`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, store.NewStoreError("job", "delete_failed", "delete failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
