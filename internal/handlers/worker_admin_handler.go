package handlers

import (
	"net/http"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
	"github.com/mohankp/sales-enablement-training/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerAdminHandler handles worker administration endpoints. worker is nil when ingestion runs
// in a separate process; status then comes from the database alone.
type WorkerAdminHandler struct {
	worker        *worker.Worker
	workerService services.WorkerServiceInterface
	aiService     services.AIServiceInterface
	logger        *observability.Logger
}

// NewWorkerAdminHandlerWithLogger creates a new WorkerAdminHandler
func NewWorkerAdminHandlerWithLogger(
	w *worker.Worker,
	workerService services.WorkerServiceInterface,
	aiService services.AIServiceInterface,
	logger *observability.Logger,
) *WorkerAdminHandler {
	return &WorkerAdminHandler{
		worker:        w,
		workerService: workerService,
		aiService:     aiService,
		logger:        logger,
	}
}

// GetWorkerStatus returns the local worker's state plus every instance recorded in the database
func (h *WorkerAdminHandler) GetWorkerStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_status")
	defer observability.FinishSpan(span, nil)

	globalPaused, err := h.workerService.IsGlobalPaused(ctx)
	if err != nil {
		// Log the error but continue with default value
		h.logger.Warn(ctx, "Failed to get global pause status", map[string]interface{}{"error": err.Error()})
		globalPaused = false
	}

	instances, err := h.workerService.GetAllWorkerStatuses(ctx)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get worker statuses"))
		return
	}
	if instances == nil {
		instances = []models.WorkerStatus{}
	}

	response := gin.H{
		"global_paused": globalPaused,
		"instances":     instances,
	}
	if h.worker != nil {
		response["local"] = gin.H{
			"instance": h.worker.GetInstance(),
			"status":   h.worker.GetStatus(),
			"history":  h.worker.GetHistory(),
		}
	}
	c.JSON(http.StatusOK, response)
}

// GetActivityLogs returns the local worker's recent activity
func (h *WorkerAdminHandler) GetActivityLogs(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_activity_logs")
	defer observability.FinishSpan(span, nil)

	logs := []worker.ActivityLog{}
	if h.worker != nil {
		logs = h.worker.GetActivityLogs()
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// PauseWorker sets the shared pause flag so no instance takes new jobs
func (h *WorkerAdminHandler) PauseWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker")
	defer observability.FinishSpan(span, nil)

	var err error
	if h.worker != nil {
		err = h.worker.Pause(ctx)
	} else {
		err = h.workerService.SetGlobalPause(ctx, true)
	}
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to pause worker globally"))
		return
	}

	h.logger.Info(ctx, "Worker paused via admin API", map[string]interface{}{"admin_user_id": contextutils.GetUserIDFromContext(ctx)})
	c.JSON(http.StatusOK, gin.H{"message": "Worker paused globally", "paused": true})
}

// ResumeWorker clears the shared pause flag
func (h *WorkerAdminHandler) ResumeWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker")
	defer observability.FinishSpan(span, nil)

	var err error
	if h.worker != nil {
		err = h.worker.Resume(ctx)
	} else {
		err = h.workerService.SetGlobalPause(ctx, false)
	}
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to resume worker globally"))
		return
	}

	h.logger.Info(ctx, "Worker resumed via admin API", map[string]interface{}{"admin_user_id": contextutils.GetUserIDFromContext(ctx)})
	c.JSON(http.StatusOK, gin.H{"message": "Worker resumed globally", "paused": false})
}

// RecoverJobs fails orphaned Processing jobs and re-enqueues Pending ones on the local worker
func (h *WorkerAdminHandler) RecoverJobs(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "recover_jobs")
	defer observability.FinishSpan(span, nil)

	if h.worker == nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrServiceUnavailable, "no worker runs in this process"))
		return
	}
	if err := h.worker.RecoverPendingJobs(ctx); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to recover jobs"))
		return
	}
	h.logger.Info(ctx, "Job recovery triggered via admin API", map[string]interface{}{"admin_user_id": contextutils.GetUserIDFromContext(ctx)})
	c.JSON(http.StatusAccepted, gin.H{"message": "Pending jobs re-enqueued"})
}

// GetSystemHealth summarizes worker heartbeats and LLM concurrency
func (h *WorkerAdminHandler) GetSystemHealth(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_system_health")
	defer observability.FinishSpan(span, nil)

	health, err := h.workerService.GetWorkerHealth(ctx)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get worker health"))
		return
	}

	response := gin.H{"worker_health": health}
	if h.aiService != nil {
		response["ai_concurrency"] = h.aiService.GetConcurrencyStats()
	}
	c.JSON(http.StatusOK, response)
}
