package handlers

import (
	"net/http"
	"unicode/utf8"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 500
	// searchPreviewRunes is how much of each chunk the search endpoint shows
	searchPreviewRunes = 200
)

// SearchHit is one knowledge base search result as shown to admins
type SearchHit struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
}

// AdminHandler serves ingestion job and knowledge base administration
type AdminHandler struct {
	jobService       services.JobServiceInterface
	kbService        services.KnowledgeBaseServiceInterface
	ingestionService services.IngestionServiceInterface
	cfg              *config.Config
	logger           *observability.Logger
}

// NewAdminHandlerWithLogger creates a new AdminHandler
func NewAdminHandlerWithLogger(
	jobService services.JobServiceInterface,
	kbService services.KnowledgeBaseServiceInterface,
	ingestionService services.IngestionServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *AdminHandler {
	return &AdminHandler{
		jobService:       jobService,
		kbService:        kbService,
		ingestionService: ingestionService,
		cfg:              cfg,
		logger:           logger,
	}
}

// ListJobs returns the most recent ingestion jobs
func (h *AdminHandler) ListJobs(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_jobs")
	defer observability.FinishSpan(span, nil)

	limit := ParseLimit(c, defaultJobListLimit, maxJobListLimit)
	jobs, err := h.jobService.ListJobs(ctx, limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.ProcessingJob{}
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob returns one ingestion job
func (h *AdminHandler) GetJob(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_job")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeJobID(id))

	job, err := h.jobService.GetJob(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListKnowledgeBaseFiles returns the filenames of successfully ingested documents
func (h *AdminHandler) ListKnowledgeBaseFiles(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_kb_files")
	defer observability.FinishSpan(span, nil)

	files, err := h.kbService.ListFiles(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// SearchKnowledgeBase runs a retrieval query, optionally within one project
func (h *AdminHandler) SearchKnowledgeBase(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "search_kb")
	defer observability.FinishSpan(span, nil)

	query := c.Query("query")
	if query == "" {
		HandleValidationError(c, "query", query, "query is required")
		return
	}
	projectID, ok := parseOptionalID(c.Query("project_id"))
	if !ok {
		HandleValidationError(c, "project_id", c.Query("project_id"), "must be a positive integer")
		return
	}
	span.SetAttributes(attribute.String("kb.query", query), observability.AttributeProjectID(projectID))

	results, err := h.kbService.Search(ctx, query, projectID, h.cfg.KnowledgeBase.SearchLimit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Text: previewText(r.Text), Score: r.Score, Filename: r.Filename})
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": hits})
}

// ReprocessDocument queues a new job over an archived upload
func (h *AdminHandler) ReprocessDocument(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "reprocess_document")
	defer observability.FinishSpan(span, nil)

	var req services.ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request", "", err.Error())
		return
	}

	job, err := h.ingestionService.Reprocess(ctx, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Document re-queued", map[string]interface{}{
		"job_id":        job.ID,
		"filename":      job.Filename,
		"admin_user_id": contextutils.GetUserIDFromContext(ctx),
	})
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"job_id":   job.ID,
		"filename": job.Filename,
		"message":  job.Message,
	})
}

// previewText returns the first searchPreviewRunes runes of text followed by "..."
func previewText(text string) string {
	if utf8.RuneCountInString(text) > searchPreviewRunes {
		text = string([]rune(text)[:searchPreviewRunes])
	}
	return text + "..."
}
