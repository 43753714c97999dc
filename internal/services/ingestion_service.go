package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services/storage"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// JobEnqueuer hands a job id to whatever runs ingestion
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobID int) error
}

// ExtractionRequest is one document to turn into topics and questions
type ExtractionRequest struct {
	Text      string
	Filename  string
	ProjectID *int
	Focus     string
	JobID     *int
}

// ReprocessRequest names an earlier upload by job id or by filename
type ReprocessRequest struct {
	JobID    *int    `json:"job_id,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Context  *string `json:"context,omitempty"`
}

// IngestionServiceInterface accepts uploads and turns documents into topics and bank questions
type IngestionServiceInterface interface {
	Submit(ctx context.Context, filename string, data []byte, projectID *int, jobContext string) (*models.ProcessingJob, error)
	Reprocess(ctx context.Context, req ReprocessRequest) (*models.ProcessingJob, error)
	ProcessJob(ctx context.Context, jobID int) error
	Extract(ctx context.Context, req ExtractionRequest) (*models.ExtractionResult, error)
}

// IngestionService runs the document to question bank pipeline
type IngestionService struct {
	cfg      *config.Config
	ai       AIServiceInterface
	topics   TopicServiceInterface
	bank     QuestionBankServiceInterface
	kb       KnowledgeBaseServiceInterface
	jobs     JobServiceInterface
	projects ProjectServiceInterface
	store    storage.Store
	queue    JobEnqueuer
	logger   *observability.Logger
}

// NewIngestionService creates a new IngestionService. queue may be nil for processes that only run jobs.
func NewIngestionService(
	cfg *config.Config,
	ai AIServiceInterface,
	topics TopicServiceInterface,
	bank QuestionBankServiceInterface,
	kb KnowledgeBaseServiceInterface,
	jobs JobServiceInterface,
	projects ProjectServiceInterface,
	store storage.Store,
	queue JobEnqueuer,
	logger *observability.Logger,
) *IngestionService {
	return &IngestionService{
		cfg:      cfg,
		ai:       ai,
		topics:   topics,
		bank:     bank,
		kb:       kb,
		jobs:     jobs,
		projects: projects,
		store:    store,
		queue:    queue,
		logger:   logger,
	}
}

// Submit archives the upload, records a Pending job and enqueues it. Extraction happens later.
func (s *IngestionService) Submit(ctx context.Context, filename string, data []byte, projectID *int, jobContext string) (result0 *models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "submit_document",
		attribute.String("document.filename", filename),
		attribute.Int("document.bytes", len(data)),
		observability.AttributeProjectID(projectID),
	)
	defer observability.FinishSpan(span, &err)

	if filename == "" || len(data) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "a non-empty file is required")
	}
	if projectID != nil {
		if _, err = s.projects.GetProject(ctx, *projectID); err != nil {
			return nil, err
		}
	}

	key := storage.UploadKey(filename)
	if err = s.store.Put(ctx, key, data); err != nil {
		return nil, contextutils.WrapError(err, "failed to archive upload")
	}

	job, err := s.jobs.CreateJob(ctx, filename, key, projectID, strings.TrimSpace(jobContext))
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn(ctx, "Failed to remove orphaned upload", map[string]interface{}{"key": key, "error": delErr.Error()})
		}
		return nil, err
	}

	if err = s.enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Reprocess queues a new job over the archived bytes of an earlier upload
func (s *IngestionService) Reprocess(ctx context.Context, req ReprocessRequest) (result0 *models.ProcessingJob, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "reprocess_document", attribute.String("document.filename", req.Filename))
	defer observability.FinishSpan(span, &err)

	var source *models.ProcessingJob
	switch {
	case req.JobID != nil:
		source, err = s.jobs.GetJob(ctx, *req.JobID)
	case strings.TrimSpace(req.Filename) != "":
		source, err = s.jobs.FindLatestJobByFilename(ctx, strings.TrimSpace(req.Filename))
	default:
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "job_id or filename is required")
	}
	if err != nil {
		return nil, err
	}
	if source.StorageKey == "" {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "job %d has no archived upload; upload the file again", source.ID)
	}

	jobContext := ""
	if source.Context != nil {
		jobContext = *source.Context
	}
	if req.Context != nil {
		jobContext = strings.TrimSpace(*req.Context)
	}

	job, err := s.jobs.CreateJob(ctx, source.Filename, source.StorageKey, source.ProjectID, jobContext)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Reprocessing archived upload", map[string]interface{}{
		"source_job_id": source.ID,
		"job_id":        job.ID,
		"filename":      source.Filename,
	})

	if err = s.enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *IngestionService) enqueue(ctx context.Context, job *models.ProcessingJob) error {
	if s.queue == nil {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "ingestion queue is not configured")
	}
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The job stays Pending and is picked up again when a worker starts
		s.logger.Error(ctx, "Failed to enqueue ingestion job", err, map[string]interface{}{"job_id": job.ID})
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to enqueue job %d: %v", job.ID, err)
	}
	return nil
}

// ProcessJob claims a Pending job and runs it to a terminal state. A finished job is reported with
// ErrJobFinished and one that another worker holds with ErrJobClaimed; neither is touched.
func (s *IngestionService) ProcessJob(ctx context.Context, jobID int) (err error) {
	ctx = contextutils.WithJobID(ctx, jobID)
	ctx, span := observability.TraceIngestionFunction(ctx, "process_job", observability.AttributeJobID(jobID))
	defer observability.FinishSpan(span, &err)

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return contextutils.WrapErrorf(contextutils.ErrJobFinished, "job %d is already %s", jobID, job.Status)
	}
	if job.Status == models.JobProcessing {
		return contextutils.WrapErrorf(contextutils.ErrJobClaimed, "job %d is already Processing", jobID)
	}

	if err = s.jobs.MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	result, runErr := s.runJob(ctx, job)
	if runErr != nil {
		observability.RecordIngestionJob(ctx, string(models.JobFailed), 0)
		s.logger.Error(ctx, "Ingestion job failed", runErr, map[string]interface{}{"job_id": jobID, "filename": job.Filename})
		if markErr := s.jobs.MarkFailed(ctx, jobID, runErr.Error()); markErr != nil {
			s.logger.Error(ctx, "Failed to mark job failed", markErr, map[string]interface{}{"job_id": jobID})
		}
		return runErr
	}

	message := CompletedMessage(len(result.Topics), result.QuestionsGenerated, job.Context)
	if err = s.jobs.MarkCompleted(ctx, jobID, message, len(result.Topics), result.QuestionsGenerated); err != nil {
		return err
	}

	observability.RecordIngestionJob(ctx, string(models.JobCompleted), len(result.Topics))
	span.SetAttributes(
		attribute.Int("ingestion.topics", len(result.Topics)),
		attribute.Int("ingestion.questions", result.QuestionsGenerated),
		attribute.Int("ingestion.skipped_tiers", result.SkippedTiers),
	)
	return nil
}

func (s *IngestionService) runJob(ctx context.Context, job *models.ProcessingJob) (*models.ExtractionResult, error) {
	data, err := s.store.Get(ctx, job.StorageKey)
	if err != nil {
		return nil, err
	}

	text, err := ExtractDocumentText(job.Filename, data)
	if err != nil {
		return nil, err
	}

	if _, err := s.kb.IndexDocument(ctx, job, text); err != nil {
		return nil, err
	}

	focus := ""
	if job.Context != nil {
		focus = *job.Context
	}
	jobID := job.ID
	return s.Extract(ctx, ExtractionRequest{
		Text:      text,
		Filename:  job.Filename,
		ProjectID: job.ProjectID,
		Focus:     focus,
		JobID:     &jobID,
	})
}

// Extract pulls topics out of the text, reuses existing topics of the same name in the project, and
// fills the bank with one question set per topic and tier. A tier whose generated set is malformed
// is skipped; any other collaborator or database failure aborts the extraction.
func (s *IngestionService) Extract(ctx context.Context, req ExtractionRequest) (result0 *models.ExtractionResult, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "extract",
		attribute.String("document.filename", req.Filename),
		observability.AttributeProjectID(req.ProjectID),
	)
	defer observability.FinishSpan(span, &err)

	names, err := s.ai.ExtractTopics(ctx, req.Text, req.Focus)
	if err != nil {
		return nil, err
	}

	result := &models.ExtractionResult{Topics: []models.Topic{}}
	perTier := s.cfg.Assessment.QuestionsPerTier
	if perTier <= 0 {
		perTier = config.DefaultQuestionsPerTier
	}

	for _, name := range names {
		topic, inserted, err := s.topics.UpsertTopic(ctx, req.ProjectID, name, fmt.Sprintf("Extracted from %s", req.Filename))
		if err != nil {
			return nil, err
		}
		result.Topics = append(result.Topics, *topic)
		if !inserted {
			s.logger.Info(ctx, "Reusing existing topic", map[string]interface{}{"topic_id": topic.ID, "topic": topic.Name})
		}

		contextText, ctxErr := s.kb.ContextFor(ctx, topic.Name, req.ProjectID)
		if ctxErr != nil {
			s.logger.Warn(ctx, "Knowledge base context unavailable", map[string]interface{}{"topic": topic.Name, "error": ctxErr.Error()})
			contextText = ""
		}

		for _, level := range models.Levels() {
			questions, genErr := s.ai.GenerateQuestionSet(ctx, topic.Name, level, perTier, contextText)
			if genErr != nil {
				if contextutils.IsError(genErr, contextutils.ErrAIResponseInvalid) {
					result.SkippedTiers++
					s.logger.Warn(ctx, "Skipping tier with malformed questions", map[string]interface{}{
						"topic": topic.Name,
						"level": string(level),
						"error": genErr.Error(),
					})
					continue
				}
				return nil, genErr
			}

			n, err := s.bank.InsertQuestions(ctx, topic.ID, level, questions, req.JobID)
			if err != nil {
				return nil, err
			}
			result.QuestionsGenerated += n
		}
	}

	s.logger.Info(ctx, "Extraction finished", map[string]interface{}{
		"filename":      req.Filename,
		"topics":        len(result.Topics),
		"questions":     result.QuestionsGenerated,
		"skipped_tiers": result.SkippedTiers,
	})
	return result, nil
}

// CompletedMessage is the final message of a successful job
func CompletedMessage(topics, questions int, jobContext *string) string {
	msg := fmt.Sprintf("Extracted %d topics, generated %d questions.", topics, questions)
	if jobContext != nil && *jobContext != "" {
		msg += fmt.Sprintf(" (Context: %s)", *jobContext)
	}
	return msg
}
