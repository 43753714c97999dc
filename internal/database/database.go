// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"go.nhat.io/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// DefaultDatabaseConfig returns the default database configuration
func DefaultDatabaseConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}

	if testURL := os.Getenv("TEST_DATABASE_URL"); testURL != "" {
		cfg.URL = testURL
	}

	return cfg
}

// InitDB initializes and returns a database connection with migrations
func (dm *Manager) InitDB(databaseURL string) (result0 *sql.DB, err error) {
	cfg := DefaultDatabaseConfig()
	cfg.URL = databaseURL
	return dm.InitDBWithConfig(cfg)
}

// InitDBWithConfig initializes and returns a database connection with migrations and custom config
func (dm *Manager) InitDBWithConfig(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithConfig",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}

	if err := dm.RunMigrations(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database after migration failure", closeErr)
		}
		return nil, err
	}

	return db, nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}
	return "sales_trainer"
}

// InitDBWithoutMigrations initializes and returns a database connection without running migrations
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithoutMigrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	if cfg.URL == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "database url is not configured")
	}

	// Register the instrumented driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to ping database: %v", err)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies the base schema and then any pending versioned migrations
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", "postgresql"),
	)
	defer observability.FinishSpan(span, &err)

	if err := dm.runApplicationSchema(ctx, db); err != nil {
		return contextutils.WrapError(err, "failed to run application schema")
	}

	if err := dm.runGolangMigrate(ctx, db); err != nil {
		return contextutils.WrapError(err, "failed to run golang-migrate migrations")
	}

	dm.logger.Info(ctx, "Database migrations completed successfully")
	return nil
}

// runGolangMigrate applies the embedded migrations/ directory
func (dm *Manager) runGolangMigrate(ctx context.Context, db *sql.DB) (err error) {
	_, span := observability.TraceDatabaseFunction(ctx, "runGolangMigrate",
		attribute.String("migration.type", "golang_migrate"),
	)
	defer observability.FinishSpan(span, &err)

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return contextutils.WrapError(err, "failed to create migrate driver")
	}

	// m.Close would close db as well, so only the source is released
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			dm.logger.Warn(ctx, "Error closing migration source", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "No new golang-migrate migrations to apply")
		return nil
	}
	if err != nil {
		return contextutils.WrapError(err, "golang-migrate up failed")
	}

	version, dirty, _ := m.Version()
	span.SetAttributes(attribute.Int("migration.version", int(version)), attribute.Bool("migration.dirty", dirty))
	dm.logger.Info(ctx, "golang-migrate migrations applied", map[string]interface{}{"version": version})
	return nil
}

// runApplicationSchema executes the embedded schema.sql. Index statements run after tables.
func (dm *Manager) runApplicationSchema(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "runApplicationSchema",
		attribute.String("migration.type", "application_schema"),
	)
	defer observability.FinishSpan(span, &err)

	statements := parseSchemaStatements(schemaSQL)
	span.SetAttributes(attribute.Int("schema.statements.count", len(statements)))

	var indexStatements []string
	for _, statement := range statements {
		upper := strings.ToUpper(statement)
		if strings.HasPrefix(upper, "CREATE INDEX") {
			indexStatements = append(indexStatements, statement)
			continue
		}
		if _, execErr := db.ExecContext(ctx, statement); execErr != nil && !isAlreadyExistsError(execErr) {
			return contextutils.WrapErrorf(execErr, "failed to execute schema statement: %s", statement)
		}
	}

	for _, statement := range indexStatements {
		if _, execErr := db.ExecContext(ctx, statement); execErr != nil && !isAlreadyExistsError(execErr) {
			return contextutils.WrapErrorf(execErr, "failed to execute index statement: %s", statement)
		}
	}

	return nil
}

// parseSchemaStatements strips comments and splits the schema into statements
func parseSchemaStatements(schema string) []string {
	var cleanedLines []string
	inComment := false

	for _, line := range strings.Split(schema, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/*"):
			inComment = !strings.HasSuffix(line, "*/")
			continue
		case inComment:
			if strings.HasSuffix(line, "*/") {
				inComment = false
			}
			continue
		case strings.HasPrefix(line, "--"):
			continue
		}

		if idx := strings.Index(line, "--"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}
		cleanedLines = append(cleanedLines, line)
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleanedLines, " "), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func isAlreadyExistsError(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}

// TableCounts returns row counts for the main tables, for operator tooling
func TableCounts(ctx context.Context, db *sql.DB) (map[string]int, error) {
	tables := []string{
		"users", "projects", "topics", "question_bank", "assessment_sessions",
		"question_history", "topic_scores", "processing_jobs", "document_chunks",
	}
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		// Table names come from the fixed list above
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "count %s: %v", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
