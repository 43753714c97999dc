package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// JobServiceInterface tracks ingestion jobs through Pending, Processing and a terminal state
type JobServiceInterface interface {
	CreateJob(ctx context.Context, filename, storageKey string, projectID *int, jobContext string) (*models.ProcessingJob, error)
	GetJob(ctx context.Context, id int) (*models.ProcessingJob, error)
	ListJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error)
	ListPendingJobIDs(ctx context.Context) ([]int, error)
	FailOrphanedJobs(ctx context.Context, staleAfter time.Duration) ([]int, error)
	FindLatestJobByFilename(ctx context.Context, filename string) (*models.ProcessingJob, error)
	MarkProcessing(ctx context.Context, id int) error
	MarkCompleted(ctx context.Context, id int, message string, topicsCreated, questionsGenerated int) error
	MarkFailed(ctx context.Context, id int, message string) error
}

// JobService owns processing_jobs. Completed and Failed are final; the store refuses to leave them.
type JobService struct {
	db     *sql.DB
	logger *observability.Logger
}

const jobSelectFields = `id, filename, project_id, context, storage_key, status, message, topics_created,
	questions_generated, worker_instance, created_at, updated_at, completed_at`

// OrphanedJobMessage is recorded on a Processing job whose worker went away
const OrphanedJobMessage = "Interrupted: the worker processing this job stopped before it finished"

// NewJobService creates a new JobService
func NewJobService(db *sql.DB, logger *observability.Logger) *JobService {
	return &JobService{db: db, logger: logger}
}

func scanJob(row rowScanner) (result0 *models.ProcessingJob, err error) {
	var j models.ProcessingJob
	var projectID sql.NullInt64
	var jobContext sql.NullString
	var status string
	var instance sql.NullString
	var completedAt sql.NullTime
	if err = row.Scan(&j.ID, &j.Filename, &projectID, &jobContext, &j.StorageKey, &status, &j.Message, &j.TopicsCreated,
		&j.QuestionsGenerated, &instance, &j.CreatedAt, &j.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	j.WorkerInstance = instance.String
	j.ProjectID = nullInt64ToIntPointer(projectID)
	if jobContext.Valid {
		j.Context = &jobContext.String
	}
	j.Status = models.JobStatus(status)
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

// QueuedMessage is the initial job message shown to admins
func QueuedMessage(jobContext string) string {
	if jobContext == "" {
		return "Queued"
	}
	return fmt.Sprintf("Queued with context: %s", jobContext)
}

// CreateJob records a Pending job for an archived upload
func (s *JobService) CreateJob(ctx context.Context, filename, storageKey string, projectID *int, jobContext string) (result0 *models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "create_job",
		attribute.String("document.filename", filename),
		observability.AttributeProjectID(projectID),
	)
	defer observability.FinishSpan(span, &err)

	if filename == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "filename is required")
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, `
		INSERT INTO processing_jobs (filename, project_id, context, storage_key, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+jobSelectFields,
		filename, intPointerArg(projectID), nullableString(jobContext), storageKey, string(models.JobPending), QueuedMessage(jobContext)))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create job: %v", err)
	}

	span.SetAttributes(observability.AttributeJobID(job.ID))
	s.logger.Info(ctx, "Ingestion job created", map[string]interface{}{
		"job_id":     job.ID,
		"filename":   filename,
		"project_id": projectID,
	})
	return job, nil
}

// GetJob returns the job or ErrJobNotFound
func (s *JobService) GetJob(ctx context.Context, id int) (result0 *models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "get_job", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobSelectFields+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrJobNotFound
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get job %d: %v", id, err)
	}
	return job, nil
}

// ListJobs returns the newest jobs first. A non-positive limit lists everything.
func (s *JobService) ListJobs(ctx context.Context, limit int) (result0 []models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "list_jobs", observability.AttributeLimit(limit))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + jobSelectFields + ` FROM processing_jobs ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list jobs: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	jobs := []models.ProcessingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListPendingJobIDs returns the Pending jobs oldest first, for re-enqueueing after a restart.
// Processing jobs belong to the worker that claimed them and are left to FailOrphanedJobs.
func (s *JobService) ListPendingJobIDs(ctx context.Context) (result0 []int, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "list_pending_jobs")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM processing_jobs WHERE status = $1 ORDER BY created_at, id`,
		string(models.JobPending))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list pending jobs: %v", err)
	}
	return s.collectIDs(ctx, rows)
}

// FailOrphanedJobs fails Processing jobs that have not moved for staleAfter and whose claiming
// instance has no running status row with a heartbeat inside the same window. It returns their ids.
func (s *JobService) FailOrphanedJobs(ctx context.Context, staleAfter time.Duration) (result0 []int, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "fail_orphaned_jobs",
		attribute.String("jobs.stale_after", staleAfter.String()))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE processing_jobs j
		SET status = $1,
		    message = $2,
		    updated_at = NOW(),
		    completed_at = NOW()
		WHERE j.status = $3
		  AND j.updated_at < NOW() - make_interval(secs => $4)
		  AND NOT EXISTS (
		      SELECT 1 FROM worker_status w
		      WHERE w.worker_instance = j.worker_instance
		        AND w.is_running
		        AND w.last_heartbeat > NOW() - make_interval(secs => $4))
		RETURNING j.id`,
		string(models.JobFailed), OrphanedJobMessage, string(models.JobProcessing), staleAfter.Seconds())
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to fail orphaned jobs: %v", err)
	}
	ids, err := s.collectIDs(ctx, rows)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		s.logger.Warn(ctx, "Failed orphaned ingestion jobs", map[string]interface{}{"job_ids": ids})
	}
	span.SetAttributes(attribute.Int("jobs.orphaned", len(ids)))
	return ids, nil
}

func (s *JobService) collectIDs(ctx context.Context, rows *sql.Rows) ([]int, error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan job id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindLatestJobByFilename returns the newest job for filename that has an archived upload, or ErrJobNotFound
func (s *JobService) FindLatestJobByFilename(ctx context.Context, filename string) (result0 *models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "find_job_by_filename", attribute.String("document.filename", filename))
	defer observability.FinishSpan(span, &err)

	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobSelectFields+` FROM processing_jobs
		WHERE filename = $1 AND storage_key <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrJobNotFound
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to find job for %s: %v", filename, err)
	}
	return job, nil
}

// MarkProcessing claims a Pending job for the worker instance carried by ctx. Only one caller can
// win the claim: the others get ErrJobClaimed, or ErrJobFinished once the job is terminal.
func (s *JobService) MarkProcessing(ctx context.Context, id int) (err error) {
	instance := contextutils.GetWorkerInstanceFromContext(ctx)
	ctx, span := observability.TraceIngestionFunction(ctx, "mark_job_processing",
		observability.AttributeJobID(id),
		attribute.String("worker.instance", instance),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = $1,
		    message = $2,
		    worker_instance = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		string(models.JobProcessing), "Processing", nullableString(instance), id, string(models.JobPending))
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to claim job %d: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.refusedTransition(ctx, id)
	}

	s.logger.Info(ctx, "Ingestion job claimed", map[string]interface{}{
		"job_id":   id,
		"instance": instance,
	})
	return nil
}

// MarkCompleted finalizes a job with its summary message and counters
func (s *JobService) MarkCompleted(ctx context.Context, id int, message string, topicsCreated, questionsGenerated int) (err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "mark_job_completed", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	return s.transition(ctx, id, models.JobCompleted, message, topicsCreated, questionsGenerated)
}

// MarkFailed finalizes a job with the error message
func (s *JobService) MarkFailed(ctx context.Context, id int, message string) (err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "mark_job_failed", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	return s.transition(ctx, id, models.JobFailed, message, 0, 0)
}

func (s *JobService) transition(ctx context.Context, id int, status models.JobStatus, message string, topicsCreated, questionsGenerated int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = $1,
		    message = $2,
		    topics_created = $3,
		    questions_generated = $4,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $1 IN ('Completed', 'Failed') THEN NOW() ELSE completed_at END
		WHERE id = $5 AND status NOT IN ('Completed', 'Failed')`,
		string(status), message, topicsCreated, questionsGenerated, id)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update job %d: %v", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return s.refusedTransition(ctx, id)
	}

	s.logger.Info(ctx, "Ingestion job status changed", map[string]interface{}{
		"job_id":  id,
		"status":  string(status),
		"message": message,
	})
	return nil
}

// refusedTransition explains why an update matched no row
func (s *JobService) refusedTransition(ctx context.Context, id int) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM processing_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return contextutils.ErrJobNotFound
	}
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to read job %d: %v", id, err)
	}
	if models.JobStatus(current) == models.JobProcessing {
		return contextutils.WrapErrorf(contextutils.ErrJobClaimed, "job %d is already Processing", id)
	}
	return contextutils.WrapErrorf(contextutils.ErrJobFinished, "job %d is already %s", id, current)
}
