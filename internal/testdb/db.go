package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/taskconvertai/taskconvert-api/internal/ciutil"
	"github.com/taskconvertai/taskconvert-api/internal/platform/postgres"
	"github.com/taskconvertai/taskconvert-api/internal/redact"
)

var (
	sharedOnce sync.Once
	sharedDB   *sql.DB
	sharedErr  error
)

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return ciutil.GetTestDatabaseURL() == ""
}

// GetTestDBWithT returns the shared migrated test database. The test is
// skipped when no database URL is configured; outside CI a connection
// failure skips too, inside CI it fails the test.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := ciutil.GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("no test database configured - skipping integration test")
	}

	sharedOnce.Do(func() {
		sharedDB, sharedErr = open(dbURL)
	})
	if sharedErr != nil {
		if ciutil.IsCI() {
			t.Fatalf("test database unavailable: %v", sharedErr)
		}
		t.Skipf("test database unavailable: %v", sharedErr)
	}
	return sharedDB
}

func open(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open: %s", redact.Error(err))
	}
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %s", redact.Error(err))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.Migrate(ctx, db, postgres.MigrateUp, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// WithTx runs fn within a transaction that is rolled back afterwards,
// even when fn panics.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
