package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ErrSettingNotFound is returned when a setting is not found in the database
var ErrSettingNotFound = errors.New("setting not found")

const globalPauseSetting = "global_pause"

// WorkerHealthWindow is how recent a heartbeat must be for a worker to count as healthy
const WorkerHealthWindow = 5 * time.Minute

// WorkerServiceInterface persists ingestion worker state shared across processes
type WorkerServiceInterface interface {
	// Settings management
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	IsGlobalPaused(ctx context.Context) (bool, error)
	SetGlobalPause(ctx context.Context, paused bool) error

	// Status management
	UpdateWorkerStatus(ctx context.Context, status *models.WorkerStatus) error
	GetAllWorkerStatuses(ctx context.Context) ([]models.WorkerStatus, error)
	UpdateHeartbeat(ctx context.Context, instance string) error
	GetWorkerHealth(ctx context.Context) (map[string]interface{}, error)
}

// WorkerService stores worker settings and per-instance status rows
type WorkerService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewWorkerServiceWithLogger creates a new WorkerService instance with logger
func NewWorkerServiceWithLogger(db *sql.DB, logger *observability.Logger) *WorkerService {
	return &WorkerService{
		db:     db,
		logger: logger,
	}
}

// GetSetting retrieves a setting value by key
func (s *WorkerService) GetSetting(ctx context.Context, key string) (result0 string, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(key) == "" {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "setting key cannot be empty")
	}

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT setting_value FROM worker_settings WHERE setting_key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "Setting not found", map[string]interface{}{"setting_key": key})
			return "", contextutils.WrapErrorf(ErrSettingNotFound, "%s", key)
		}
		return "", contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get setting %s: %v", key, err)
	}
	return value, nil
}

// SetSetting updates or creates a setting
func (s *WorkerService) SetSetting(ctx context.Context, key, value string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(key) == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "setting key cannot be empty")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to set setting %s: %v", key, err)
	}

	s.logger.Debug(ctx, "Setting updated", map[string]interface{}{"setting_key": key, "setting_value": value})
	return nil
}

// IsGlobalPaused reports whether ingestion is paused for every worker. A missing setting means not paused.
func (s *WorkerService) IsGlobalPaused(ctx context.Context) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_global_paused")
	defer observability.FinishSpan(span, &err)

	value, err := s.GetSetting(ctx, globalPauseSetting)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

// SetGlobalPause sets the global pause state
func (s *WorkerService) SetGlobalPause(ctx context.Context, paused bool) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_global_pause", attribute.Bool("paused", paused))
	defer observability.FinishSpan(span, &err)

	value := "false"
	if paused {
		value = "true"
	}
	if err = s.SetSetting(ctx, globalPauseSetting, value); err != nil {
		return err
	}

	s.logger.Info(ctx, "Global pause state updated", map[string]interface{}{"global_paused": paused})
	return nil
}

// UpdateWorkerStatus upserts the status row of status.WorkerInstance
func (s *WorkerService) UpdateWorkerStatus(ctx context.Context, status *models.WorkerStatus) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "update_worker_status",
		attribute.String("worker.instance", status.WorkerInstance),
		attribute.Bool("worker.is_running", status.IsRunning),
		attribute.Bool("worker.is_paused", status.IsPaused),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (
			worker_instance, is_running, is_paused, current_activity,
			last_heartbeat, last_run_start, last_run_finish, last_run_error,
			total_jobs, failed_jobs, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			is_paused = EXCLUDED.is_paused,
			current_activity = EXCLUDED.current_activity,
			last_heartbeat = EXCLUDED.last_heartbeat,
			last_run_start = EXCLUDED.last_run_start,
			last_run_finish = EXCLUDED.last_run_finish,
			last_run_error = EXCLUDED.last_run_error,
			total_jobs = EXCLUDED.total_jobs,
			failed_jobs = EXCLUDED.failed_jobs,
			updated_at = EXCLUDED.updated_at
	`, status.WorkerInstance, status.IsRunning, status.IsPaused, status.CurrentActivity,
		status.LastHeartbeat, status.LastRunStart, status.LastRunFinish,
		status.LastRunError, status.TotalJobs, status.FailedJobs)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update worker status for instance %s: %v", status.WorkerInstance, err)
	}
	return nil
}

// GetAllWorkerStatuses retrieves all worker statuses
func (s *WorkerService) GetAllWorkerStatuses(ctx context.Context) (result0 []models.WorkerStatus, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_all_worker_statuses")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_instance, is_running, is_paused, current_activity,
			   last_heartbeat, last_run_start, last_run_finish, last_run_error,
			   total_jobs, failed_jobs, updated_at
		FROM worker_status ORDER BY worker_instance
	`)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get all worker statuses: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	statuses := []models.WorkerStatus{}
	for rows.Next() {
		var status models.WorkerStatus
		if err := rows.Scan(
			&status.WorkerInstance, &status.IsRunning, &status.IsPaused, &status.CurrentActivity,
			&status.LastHeartbeat, &status.LastRunStart, &status.LastRunFinish, &status.LastRunError,
			&status.TotalJobs, &status.FailedJobs, &status.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan worker status row")
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// UpdateHeartbeat updates the heartbeat for a worker instance
func (s *WorkerService) UpdateHeartbeat(ctx context.Context, instance string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "update_heartbeat", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (worker_instance, last_heartbeat, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at
	`, instance)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update heartbeat for instance %s: %v", instance, err)
	}
	return nil
}

// GetWorkerHealth summarizes every known worker instance and the global pause flag
func (s *WorkerService) GetWorkerHealth(ctx context.Context) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_worker_health")
	defer observability.FinishSpan(span, &err)

	statuses, err := s.GetAllWorkerStatuses(ctx)
	if err != nil {
		return nil, err
	}

	globalPaused, err := s.IsGlobalPaused(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to get global pause state", err)
		globalPaused = false
	}

	instances := make([]map[string]interface{}, 0, len(statuses))
	healthyCount := 0
	for _, status := range statuses {
		healthy := status.LastHeartbeat != nil && time.Since(*status.LastHeartbeat) < WorkerHealthWindow
		if healthy {
			healthyCount++
		}
		instances = append(instances, map[string]interface{}{
			"worker_instance":  status.WorkerInstance,
			"healthy":          healthy,
			"is_running":       status.IsRunning,
			"is_paused":        status.IsPaused,
			"current_activity": status.CurrentActivity,
			"last_heartbeat":   status.LastHeartbeat,
			"last_run_error":   status.LastRunError,
			"total_jobs":       status.TotalJobs,
			"failed_jobs":      status.FailedJobs,
		})
	}

	return map[string]interface{}{
		"global_paused":    globalPaused,
		"worker_instances": instances,
		"total_count":      len(statuses),
		"healthy_count":    healthyCount,
	}, nil
}
