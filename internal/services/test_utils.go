//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/database"
	"github.com/mohankp/sales-enablement-training/internal/observability"

	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup provides a clean, migrated database for each integration test
func SharedTestDBSetup(t *testing.T) *sql.DB {
	observabilityLogger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(observabilityLogger)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)

	CleanupTestDatabase(db, t)
	return db
}

// cleanupDatabase truncates every application table and restarts the id sequences
func cleanupDatabase(db *sql.DB, logger *observability.Logger) {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to begin cleanup transaction", err)
		}
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		TRUNCATE TABLE
			topic_scores,
			question_history,
			assessment_sessions,
			question_bank,
			document_chunks,
			processing_jobs,
			topics,
			projects,
			worker_status,
			worker_settings,
			users
		RESTART IDENTITY CASCADE`)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to truncate tables", err)
		}
		return
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO worker_settings (setting_key, setting_value, updated_at)
		VALUES ('global_pause', 'false', NOW())
		ON CONFLICT (setting_key) DO NOTHING`)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to insert worker settings", err)
		}
		return
	}

	if err = tx.Commit(); err != nil && logger != nil {
		logger.Error(ctx, "Failed to commit cleanup transaction", err)
	}
}

// CleanupTestDatabase cleans up the database for integration tests
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	t.Helper()
	cleanupDatabase(db, nil)
}
