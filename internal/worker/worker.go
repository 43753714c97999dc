// Package worker runs ingestion jobs in the background. Job ids arrive through a Queue; a bounded
// pool of goroutines hands each one to the ingestion service, records the outcome, and reports
// worker health to the database so that admin endpoints can show it from any process.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Run outcomes recorded in history
const (
	RunSuccess = "Success"
	RunFailure = "Failure"
	RunSkipped = "Skipped"
)

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	ActiveJobs      int       `json:"active_jobs"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	TotalJobs       int       `json:"total_jobs"`
	FailedJobs      int       `json:"failed_jobs"`
}

// RunRecord tracks one processed job
type RunRecord struct {
	JobID     int           `json:"job_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Details   string        `json:"details"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	JobID     *int      `json:"job_id,omitempty"`
}

// JobProcessor runs one ingestion job to completion
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID int) error
}

// JobRecoverer finds the jobs a previous run left behind
type JobRecoverer interface {
	ListPendingJobIDs(ctx context.Context) ([]int, error)
	FailOrphanedJobs(ctx context.Context, staleAfter time.Duration) ([]int, error)
}

// Worker consumes the ingestion queue with a fixed number of goroutines
type Worker struct {
	processor     JobProcessor
	jobs          JobRecoverer
	workerService services.WorkerServiceInterface
	queue         Queue
	instance      string
	status        Status
	history       []RunRecord
	activityLogs  []ActivityLog // Circular buffer for recent activity logs
	mu            sync.RWMutex
	inFlight      sync.WaitGroup
	cfg           config.WorkerConfig
	logger        *observability.Logger

	// Time function for testing - defaults to time.Now
	timeNow func() time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(
	processor JobProcessor,
	jobs JobRecoverer,
	workerService services.WorkerServiceInterface,
	queue Queue,
	instance string,
	cfg *config.Config,
	logger *observability.Logger,
) *Worker {
	if instance == "" {
		instance = "default"
	}

	workerCfg := cfg.Worker
	if workerCfg.Concurrency <= 0 {
		workerCfg.Concurrency = config.DefaultWorkerConcurrency
	}
	if workerCfg.PollInterval <= 0 {
		workerCfg.PollInterval = config.WorkerCheckInterval
	}
	if workerCfg.MaxHistory <= 0 {
		workerCfg.MaxHistory = config.DefaultWorkerMaxHistory
	}
	if workerCfg.MaxActivityLogs <= 0 {
		workerCfg.MaxActivityLogs = config.DefaultWorkerMaxActivityLogs
	}

	return &Worker{
		processor:     processor,
		jobs:          jobs,
		workerService: workerService,
		queue:         queue,
		instance:      instance,
		status:        Status{CurrentActivity: "Initialized"},
		history:       make([]RunRecord, 0, workerCfg.MaxHistory),
		activityLogs:  make([]ActivityLog, 0, workerCfg.MaxActivityLogs),
		cfg:           workerCfg,
		logger:        logger,
		timeNow:       time.Now,
		done:          make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled or Shutdown is called. Unfinished jobs from the
// database are queued again as the pool starts.
func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.cancel = cancel
	w.status.IsRunning = true
	w.status.CurrentActivity = "Starting"
	w.mu.Unlock()
	defer close(w.done)

	w.handleStartupPause(runCtx)
	w.updateDatabaseStatus(runCtx)

	w.logger.Info(runCtx, "Worker started", map[string]interface{}{
		"instance":    w.instance,
		"concurrency": w.cfg.Concurrency,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker %s started with %d slots", w.instance, w.cfg.Concurrency), nil)
	w.updateActivity("Waiting for jobs")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		w.heartbeatLoop(gctx)
		return nil
	})
	// Recovery runs beside the consumers so a bounded queue cannot block it
	g.Go(func() error {
		if err := w.RecoverPendingJobs(gctx); err != nil && gctx.Err() == nil {
			w.logger.Error(gctx, "Failed to recover pending jobs", err, map[string]interface{}{"instance": w.instance})
		}
		return nil
	})
	for slot := 0; slot < w.cfg.Concurrency; slot++ {
		g.Go(func() error {
			return w.consume(gctx, slot)
		})
	}
	err := g.Wait()

	// Consumers stop taking jobs on cancellation but let in-flight ones finish
	w.inFlight.Wait()

	w.mu.Lock()
	w.status.IsRunning = false
	w.status.CurrentActivity = "Stopped"
	w.mu.Unlock()
	w.updateDatabaseStatus(context.WithoutCancel(ctx))

	w.logger.Info(ctx, "Worker stopped", map[string]interface{}{"instance": w.instance})
	w.logActivity("INFO", fmt.Sprintf("Worker %s stopped", w.instance), nil)
	return err
}

// RecoverPendingJobs fails Processing jobs whose worker has gone quiet and re-enqueues every
// Pending job. A Pending id that is still queued may be delivered twice; the losing delivery is
// skipped when its claim fails.
func (w *Worker) RecoverPendingJobs(ctx context.Context) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "recover_pending_jobs", attribute.String("worker.instance", w.instance))
	defer observability.FinishSpan(span, &err)

	orphaned, err := w.jobs.FailOrphanedJobs(ctx, services.WorkerHealthWindow)
	if err != nil {
		return err
	}
	if len(orphaned) > 0 {
		w.logActivity("WARN", fmt.Sprintf("Failed %d jobs left Processing by stopped workers", len(orphaned)), nil)
	}

	ids, err := w.jobs.ListPendingJobIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err = w.queue.Enqueue(ctx, id); err != nil {
			return contextutils.WrapErrorf(err, "failed to re-enqueue job %d", id)
		}
	}

	span.SetAttributes(
		attribute.Int("jobs.recovered", len(ids)),
		attribute.Int("jobs.orphaned", len(orphaned)),
	)
	if len(ids) > 0 {
		w.logger.Info(ctx, "Re-enqueued pending jobs", map[string]interface{}{"count": len(ids), "job_ids": ids})
		w.logActivity("INFO", fmt.Sprintf("Re-enqueued %d pending jobs", len(ids)), nil)
	}
	return nil
}

// consume is one pool slot. It returns nil once ctx is done.
func (w *Worker) consume(ctx context.Context, slot int) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if paused, reason := w.checkPauseStatus(ctx); paused {
			w.updateActivity(reason)
			if !sleepCtx(ctx, w.cfg.PollInterval) {
				return nil
			}
			continue
		}

		jobID, ok, err := w.queue.Dequeue(ctx, config.WorkerDequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error(ctx, "Failed to dequeue job", err, map[string]interface{}{"instance": w.instance, "slot": slot})
			w.logActivity("ERROR", fmt.Sprintf("Queue error: %v", err), nil)
			if !sleepCtx(ctx, w.cfg.PollInterval) {
				return nil
			}
			continue
		}
		if !ok {
			continue
		}

		w.inFlight.Add(1)
		// A job that has started runs to completion even if shutdown begins meanwhile
		w.runJob(context.WithoutCancel(ctx), jobID)
		w.inFlight.Done()
	}
}

// runJob processes one job and records its outcome
func (w *Worker) runJob(ctx context.Context, jobID int) {
	ctx = contextutils.WithWorkerInstance(ctx, w.instance)
	ctx, span := observability.TraceWorkerFunction(ctx, "run_job",
		observability.AttributeJobID(jobID),
		attribute.String("worker.instance", w.instance),
	)
	defer observability.FinishSpan(span, nil)

	start := w.timeNow()
	w.mu.Lock()
	w.status.ActiveJobs++
	w.status.LastRunStart = start
	w.status.CurrentActivity = fmt.Sprintf("Processing job %d", jobID)
	w.mu.Unlock()
	w.updateDatabaseStatus(ctx)

	err := w.processor.ProcessJob(ctx, jobID)
	end := w.timeNow()

	record := RunRecord{JobID: jobID, StartTime: start, EndTime: end, Duration: end.Sub(start)}
	id := jobID

	w.mu.Lock()
	w.status.ActiveJobs--
	w.status.LastRunFinish = end
	switch {
	case err == nil:
		record.Status = RunSuccess
		record.Details = "Completed"
		w.status.TotalJobs++
		w.status.LastRunError = ""
	case contextutils.IsError(err, contextutils.ErrJobFinished) || contextutils.IsError(err, contextutils.ErrJobClaimed) ||
		contextutils.IsError(err, contextutils.ErrJobNotFound):
		// Duplicate delivery, a job another slot holds, or a job deleted while queued
		record.Status = RunSkipped
		record.Details = err.Error()
	default:
		record.Status = RunFailure
		record.Details = err.Error()
		w.status.TotalJobs++
		w.status.FailedJobs++
		w.status.LastRunError = err.Error()
	}
	if w.status.ActiveJobs == 0 {
		w.status.CurrentActivity = "Waiting for jobs"
	}
	w.mu.Unlock()

	w.recordRunHistory(record)
	span.SetAttributes(attribute.String("job.outcome", record.Status))

	switch record.Status {
	case RunSuccess:
		w.logActivity("INFO", fmt.Sprintf("Job %d completed in %s", jobID, record.Duration.Round(time.Millisecond)), &id)
	case RunSkipped:
		w.logger.Debug(ctx, "Skipped job", map[string]interface{}{"job_id": jobID, "reason": record.Details})
		w.logActivity("WARN", fmt.Sprintf("Job %d skipped: %s", jobID, record.Details), &id)
	default:
		level := "ERROR"
		if contextutils.GetErrorSeverity(err) == contextutils.SeverityWarn {
			level = "WARN"
		}
		w.logActivity(level, fmt.Sprintf("Job %d failed [%s]: %s", jobID, contextutils.GetErrorCode(err), record.Details), &id)
	}
	w.updateDatabaseStatus(ctx)
}

// handleStartupPause sets global pause if configured
func (w *Worker) handleStartupPause(ctx context.Context) {
	if !w.cfg.StartPaused {
		return
	}
	w.logger.Info(ctx, "Worker configured to start paused - setting global pause", map[string]interface{}{
		"instance": w.instance,
	})
	if err := w.workerService.SetGlobalPause(ctx, true); err != nil {
		w.logger.Error(ctx, "Failed to set global pause on startup", err, map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// checkPauseStatus reads the shared pause flag. A failed read counts as paused.
func (w *Worker) checkPauseStatus(ctx context.Context) (bool, string) {
	globalPaused, err := w.workerService.IsGlobalPaused(ctx)
	if err != nil {
		w.logger.Error(ctx, "Failed to check global pause status", err, map[string]interface{}{
			"instance": w.instance,
		})
		return true, "Error checking global pause status"
	}

	w.mu.Lock()
	changed := w.status.IsPaused != globalPaused
	w.status.IsPaused = globalPaused
	w.mu.Unlock()
	if changed {
		w.updateDatabaseStatus(ctx)
	}

	if globalPaused {
		return true, "Globally paused"
	}
	return false, ""
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.updateHeartbeat(ctx)
		}
	}
}

// updateHeartbeat updates the heartbeat in the database
func (w *Worker) updateHeartbeat(ctx context.Context) {
	if err := w.workerService.UpdateHeartbeat(ctx, w.instance); err != nil {
		w.logger.Error(ctx, "Failed to update heartbeat for worker", err, map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// recordRunHistory appends the record and trims the slice
func (w *Worker) recordRunHistory(record RunRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, record)
	if len(w.history) > w.cfg.MaxHistory {
		w.history = w.history[len(w.history)-w.cfg.MaxHistory:]
	}
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns the worker's run history
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity logs
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}

// Pause sets the shared pause flag; every worker instance stops taking new jobs
func (w *Worker) Pause(ctx context.Context) error {
	if err := w.workerService.SetGlobalPause(ctx, true); err != nil {
		return err
	}
	w.mu.Lock()
	w.status.IsPaused = true
	w.mu.Unlock()

	w.logger.Info(ctx, "Worker paused", map[string]interface{}{"instance": w.instance})
	w.logActivity("INFO", fmt.Sprintf("Worker %s paused", w.instance), nil)
	w.updateDatabaseStatus(ctx)
	return nil
}

// Resume clears the shared pause flag
func (w *Worker) Resume(ctx context.Context) error {
	if err := w.workerService.SetGlobalPause(ctx, false); err != nil {
		// Do not unpause if resume failed
		return err
	}
	w.mu.Lock()
	w.status.IsPaused = false
	w.mu.Unlock()

	w.logger.Info(ctx, "Worker resumed", map[string]interface{}{"instance": w.instance})
	w.logActivity("INFO", fmt.Sprintf("Worker %s resumed", w.instance), nil)
	w.updateDatabaseStatus(ctx)
	return nil
}

// Shutdown stops taking jobs and waits for in-flight jobs until ctx expires
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()

	w.logger.Info(ctx, "Worker starting shutdown", map[string]interface{}{
		"instance": w.instance,
	})
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-w.done:
		w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{
			"instance": w.instance,
		})
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "worker %s did not stop in time", w.instance)
	}
}

// updateDatabaseStatus writes the in-memory status to worker_status
func (w *Worker) updateDatabaseStatus(ctx context.Context) {
	w.mu.RLock()
	now := w.timeNow()
	dbStatus := &models.WorkerStatus{
		WorkerInstance:  w.instance,
		IsRunning:       w.status.IsRunning,
		IsPaused:        w.status.IsPaused,
		CurrentActivity: optionalString(w.status.CurrentActivity),
		LastHeartbeat:   &now,
		LastRunStart:    optionalTime(w.status.LastRunStart),
		LastRunFinish:   optionalTime(w.status.LastRunFinish),
		LastRunError:    optionalString(w.status.LastRunError),
		TotalJobs:       w.status.TotalJobs,
		FailedJobs:      w.status.FailedJobs,
	}
	w.mu.RUnlock()

	if err := w.workerService.UpdateWorkerStatus(ctx, dbStatus); err != nil {
		w.logger.Error(ctx, "Failed to update worker status in database", err, map[string]interface{}{
			"instance": w.instance,
		})
	}
}

func (w *Worker) updateActivity(activity string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.ActiveJobs > 0 {
		return
	}
	w.status.CurrentActivity = activity
}

// logActivity adds an activity log entry
func (w *Worker) logActivity(level, message string, jobID *int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.activityLogs = append(w.activityLogs, ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
		JobID:     jobID,
	})
	if len(w.activityLogs) > w.cfg.MaxActivityLogs {
		w.activityLogs = w.activityLogs[len(w.activityLogs)-w.cfg.MaxActivityLogs:]
	}
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
