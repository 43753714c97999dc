//go:build integration

package services

import (
	"context"
	"testing"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerService_NewWorkerService(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	assert.NotNil(t, service)
	assert.Equal(t, db, service.db)
}

func TestWorkerService_Settings(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())

	t.Run("Get non-existent setting", func(t *testing.T) {
		_, err := service.GetSetting(context.Background(), "non_existent_key")
		assert.ErrorIs(t, err, ErrSettingNotFound)
	})

	t.Run("Empty key", func(t *testing.T) {
		err := service.SetSetting(context.Background(), " ", "x")
		assert.Error(t, err)
	})

	t.Run("Set and get setting", func(t *testing.T) {
		require.NoError(t, service.SetSetting(context.Background(), "test_key", "test_value"))

		val, err := service.GetSetting(context.Background(), "test_key")
		require.NoError(t, err)
		assert.Equal(t, "test_value", val)
	})

	t.Run("Update existing setting", func(t *testing.T) {
		require.NoError(t, service.SetSetting(context.Background(), "test_key", "test_value2"))

		val, err := service.GetSetting(context.Background(), "test_key")
		require.NoError(t, err)
		assert.Equal(t, "test_value2", val)
	})
}

func TestWorkerService_GlobalPause(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	paused, err := service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, service.SetGlobalPause(ctx, true))
	paused, err = service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, service.SetGlobalPause(ctx, false))
	paused, err = service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	// A missing row reads as not paused
	_, err = db.Exec(`DELETE FROM worker_settings`)
	require.NoError(t, err)
	paused, err = service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestWorkerService_StatusAndHealth(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	now := time.Now()
	stale := now.Add(-2 * WorkerHealthWindow)
	activity := "Processing job 3"
	require.NoError(t, service.UpdateWorkerStatus(ctx, &models.WorkerStatus{
		WorkerInstance:  "worker-a",
		IsRunning:       true,
		CurrentActivity: &activity,
		LastHeartbeat:   &now,
		TotalJobs:       4,
		FailedJobs:      1,
	}))
	require.NoError(t, service.UpdateWorkerStatus(ctx, &models.WorkerStatus{
		WorkerInstance: "worker-b",
		LastHeartbeat:  &stale,
	}))

	statuses, err := service.GetAllWorkerStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "worker-a", statuses[0].WorkerInstance)
	assert.True(t, statuses[0].IsRunning)
	require.NotNil(t, statuses[0].CurrentActivity)
	assert.Equal(t, activity, *statuses[0].CurrentActivity)
	assert.Equal(t, 4, statuses[0].TotalJobs)
	assert.Equal(t, 1, statuses[0].FailedJobs)

	health, err := service.GetWorkerHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, health["total_count"])
	assert.Equal(t, 1, health["healthy_count"])
	assert.Equal(t, false, health["global_paused"])

	// A heartbeat revives the stale instance without touching its counters
	require.NoError(t, service.UpdateHeartbeat(ctx, "worker-b"))
	health, err = service.GetWorkerHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, health["healthy_count"])
}
