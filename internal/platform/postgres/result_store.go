package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// PostgresResultStore implements store.ResultStore. Transcripts and task
// lists are stored as JSONB documents.
type PostgresResultStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresResultStore creates a PostgresResultStore.
// If logger is nil, a default logger will be used.
func NewPostgresResultStore(db store.DBTX, logger *slog.Logger) *PostgresResultStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresResultStore{
		db:     db,
		logger: logger.With(slog.String("component", "result_store")),
	}
}

var _ store.ResultStore = (*PostgresResultStore)(nil)

// SaveTranscription implements store.ResultStore.SaveTranscription.
func (s *PostgresResultStore) SaveTranscription(
	ctx context.Context,
	jobID, userID string,
	utterances []domain.Utterance,
) error {
	if utterances == nil {
		utterances = []domain.Utterance{}
	}
	content, err := json.Marshal(utterances)
	if err != nil {
		return fmt.Errorf("failed to encode transcription: %w", err)
	}

	query := `
		INSERT INTO transcriptions (job_id, user_id, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET content = EXCLUDED.content
	`
	if _, err := s.db.ExecContext(ctx, query, jobID, userID, content); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save transcription",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID))
		return saveError("transcription", jobID, err)
	}
	return nil
}

// TakeTranscription implements store.ResultStore.TakeTranscription.
// The read and the delete are one statement.
func (s *PostgresResultStore) TakeTranscription(ctx context.Context, jobID string) ([]domain.Utterance, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM transcriptions WHERE job_id = $1 RETURNING content`, jobID).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		return nil, store.NewStoreError("transcription", "take", "delete failed", err)
	}

	var utterances []domain.Utterance
	if err := json.Unmarshal(content, &utterances); err != nil {
		return nil, fmt.Errorf("failed to decode transcription of %s: %w", jobID, err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("transcription consumed",
		slog.String("job_id", jobID),
		slog.Int("utterances", len(utterances)))
	return utterances, nil
}

// SaveAnalysis implements store.ResultStore.SaveAnalysis.
func (s *PostgresResultStore) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	tasks := result.Tasks
	if tasks == nil {
		tasks = []domain.TaskItem{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	query := `
		INSERT INTO analyses (job_id, user_id, summary, tasks_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, result.JobID, result.UserID, result.Summary, tasksJSON); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save analysis",
			slog.String("error", err.Error()),
			slog.String("job_id", result.JobID))
		return saveError("analysis", result.JobID, err)
	}
	return nil
}

// GetAnalysis implements store.ResultStore.GetAnalysis.
// The job metadata is read from the owning job row.
func (s *PostgresResultStore) GetAnalysis(ctx context.Context, jobID string) (*domain.AnalysisResult, error) {
	var (
		result    domain.AnalysisResult
		tasksJSON []byte
		lat, lon  sql.NullFloat64
		name      sql.NullString
		group     sql.NullString
		data      sql.NullString
	)

	query := `
		SELECT a.job_id, a.user_id, a.summary, a.tasks_json,
			j.geo_latitude, j.geo_longitude, j.name, j.group_name, j.data
		FROM analyses a
		JOIN jobs j ON j.job_id = a.job_id
		WHERE a.job_id = $1
	`
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&result.JobID,
		&result.UserID,
		&result.Summary,
		&tasksJSON,
		&lat,
		&lon,
		&name,
		&group,
		&data,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		return nil, store.NewStoreError("analysis", "get", "query failed", err)
	}

	if err := json.Unmarshal(tasksJSON, &result.Tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks of %s: %w", jobID, err)
	}
	if result.Tasks == nil {
		result.Tasks = []domain.TaskItem{}
	}
	if lat.Valid && lon.Valid {
		result.Geo = &domain.GeoLocation{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	result.Name = nullableString(name)
	result.Group = nullableString(group)
	result.Data = nullableString(data)
	return &result, nil
}

// saveError maps a failed result insert. Results reference their job, so a
// foreign key violation means the job is gone.
func saveError(entity, jobID string, err error) error {
	if IsForeignKeyViolation(err) {
		return store.NewStoreError(entity, "save", "job "+jobID+" does not exist", store.ErrJobNotFound)
	}
	return store.NewStoreError(entity, "save", "insert failed", MapError(err))
}
