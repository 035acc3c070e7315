package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

func newUniqueViolation() error {
	return &pgconn.PgError{Code: uniqueViolationCode, Message: "duplicate key"}
}

var analysisColumns = []string{
	"job_id", "user_id", "summary", "tasks_json",
	"geo_latitude", "geo_longitude", "name", "group_name", "data",
}

func newMockResultStore(t *testing.T) (*PostgresResultStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresResultStore(db, discardLogger()), mock
}

func TestPostgresResultStoreTranscription(t *testing.T) {
	t.Parallel()

	speaker := "A"

	t.Run("save encodes json", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transcriptions")).
			WithArgs("job_1", "user-1", []byte(`[{"speaker":"A","text":"hi"}]`)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := s.SaveTranscription(context.Background(), "job_1", "user-1",
			[]domain.Utterance{{Speaker: &speaker, Text: "hi"}})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("take decodes and consumes", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		take := regexp.QuoteMeta("DELETE FROM transcriptions WHERE job_id = $1 RETURNING content")
		mock.ExpectQuery(take).WithArgs("job_1").
			WillReturnRows(sqlmock.NewRows([]string{"content"}).
				AddRow([]byte(`[{"speaker":"A","text":"hi","start":0.5}]`)))
		mock.ExpectQuery(take).WithArgs("job_1").
			WillReturnRows(sqlmock.NewRows([]string{"content"}))

		utterances, err := s.TakeTranscription(context.Background(), "job_1")
		require.NoError(t, err)
		require.Len(t, utterances, 1)
		assert.Equal(t, "hi", utterances[0].Text)
		require.NotNil(t, utterances[0].Start)
		assert.Equal(t, 0.5, *utterances[0].Start)

		_, err = s.TakeTranscription(context.Background(), "job_1")
		assert.ErrorIs(t, err, store.ErrResultNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresResultStoreAnalysis(t *testing.T) {
	t.Parallel()

	t.Run("insert if absent", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (job_id) DO NOTHING")).
			WithArgs("job_1", "user-1", "summary", []byte(`[]`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.SaveAnalysis(context.Background(), &domain.AnalysisResult{
			JobID: "job_1", UserID: "user-1", Summary: "summary",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get carries job metadata", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("JOIN jobs j ON j.job_id = a.job_id")).
			WithArgs("job_1").
			WillReturnRows(sqlmock.NewRows(analysisColumns).
				AddRow("job_1", "user-1", "sum", []byte(`[{"title":"t","description":"d"}]`),
					1.0, 2.0, "standup", "team-a", "extra"))

		res, err := s.GetAnalysis(context.Background(), "job_1")
		require.NoError(t, err)
		assert.Equal(t, "sum", res.Summary)
		assert.Equal(t, []domain.TaskItem{{Title: "t", Description: "d"}}, res.Tasks)
		require.NotNil(t, res.Geo)
		assert.Equal(t, domain.GeoLocation{Latitude: 1, Longitude: 2}, *res.Geo)
		require.NotNil(t, res.Name)
		assert.Equal(t, "standup", *res.Name)
		require.NotNil(t, res.Group)
		assert.Equal(t, "team-a", *res.Group)
		require.NotNil(t, res.Data)
		assert.Equal(t, "extra", *res.Data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get without metadata", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM analyses a")).
			WithArgs("job_1").
			WillReturnRows(sqlmock.NewRows(analysisColumns).
				AddRow("job_1", "user-1", "sum", []byte(`null`), nil, nil, nil, nil, nil))

		res, err := s.GetAnalysis(context.Background(), "job_1")
		require.NoError(t, err)
		assert.Empty(t, res.Tasks)
		assert.NotNil(t, res.Tasks)
		assert.Nil(t, res.Geo)
		assert.Nil(t, res.Name)
		assert.Nil(t, res.Group)
		assert.Nil(t, res.Data)
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM analyses")).
			WillReturnRows(sqlmock.NewRows(analysisColumns))

		_, err := s.GetAnalysis(context.Background(), "job_9")
		assert.ErrorIs(t, err, store.ErrResultNotFound)
	})

	t.Run("save for deleted job", func(t *testing.T) {
		s, mock := newMockResultStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyses")).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "analyses_job_id_fkey"})

		err := s.SaveAnalysis(context.Background(), &domain.AnalysisResult{JobID: "job_gone", Summary: "s"})
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestSaveTranscriptionForDeletedJob(t *testing.T) {
	t.Parallel()

	s, mock := newMockResultStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transcriptions")).
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode})

	err := s.SaveTranscription(context.Background(), "job_gone", "user-1", nil)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Contains(t, err.Error(), "job_gone")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transcriptions")).
		WillReturnError(newUniqueViolation())
	err = s.SaveTranscription(context.Background(), "job_1", "user-1", nil)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.NotErrorIs(t, err, store.ErrJobNotFound)
}

func TestMigrationFiles(t *testing.T) {
	t.Parallel()

	files, err := MigrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_create_jobs_table.sql",
		"00002_create_transcriptions_table.sql",
		"00003_create_analyses_table.sql",
	}, files)
}
