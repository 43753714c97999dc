package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// StartAssessmentRequest is the body of POST /start_assessment
type StartAssessmentRequest struct {
	UserID    int  `json:"user_id" binding:"required,gt=0"`
	ProjectID *int `json:"project_id,omitempty" binding:"omitempty,gt=0"`
	TopicID   *int `json:"topic_id,omitempty" binding:"omitempty,gt=0"`
}

// TrainingHandler serves document upload and the adaptive assessment flow
type TrainingHandler struct {
	assessmentService services.AssessmentServiceInterface
	ingestionService  services.IngestionServiceInterface
	cfg               *config.Config
	logger            *observability.Logger
}

// NewTrainingHandler creates a new TrainingHandler
func NewTrainingHandler(
	assessmentService services.AssessmentServiceInterface,
	ingestionService services.IngestionServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *TrainingHandler {
	return &TrainingHandler{
		assessmentService: assessmentService,
		ingestionService:  ingestionService,
		cfg:               cfg,
		logger:            logger,
	}
}

// UploadPDF accepts a training document and queues it for ingestion
func (h *TrainingHandler) UploadPDF(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload_pdf")
	defer observability.FinishSpan(span, nil)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		HandleValidationError(c, "file", "", "a multipart file field named 'file' is required")
		return
	}
	maxBytes := h.cfg.Server.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxUploadBytes
	}
	if fileHeader.Size > maxBytes {
		StandardizeHTTPError(c, http.StatusRequestEntityTooLarge, "File too large",
			"Uploads are limited to "+strconv.FormatInt(maxBytes, 10)+" bytes")
		return
	}

	projectID, ok := parseOptionalID(c.PostForm("project_id"))
	if !ok {
		HandleValidationError(c, "project_id", c.PostForm("project_id"), "must be a positive integer")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to open upload: %v", err))
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read upload: %v", err))
		return
	}

	span.SetAttributes(
		attribute.String("document.filename", fileHeader.Filename),
		attribute.Int("document.bytes", len(data)),
		observability.AttributeProjectID(projectID),
	)

	job, err := h.ingestionService.Submit(ctx, fileHeader.Filename, data, projectID, c.PostForm("context"))
	if err != nil {
		h.logger.Error(ctx, "Failed to queue upload", err, map[string]interface{}{"filename": fileHeader.Filename})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "queued",
		"job_id":  job.ID,
		"message": job.Message,
	})
}

// StartAssessment opens a new session for a user
func (h *TrainingHandler) StartAssessment(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_assessment")
	defer observability.FinishSpan(span, nil)

	var req StartAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request", "", err.Error())
		return
	}
	span.SetAttributes(observability.AttributeUserID(req.UserID), observability.AttributeProjectID(req.ProjectID))

	session, err := h.assessmentService.StartSession(ctx, req.UserID, req.ProjectID, req.TopicID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	rememberSession(c, session.ID)
	c.JSON(http.StatusOK, session)
}

// GetQuestion serves the next question for a session
func (h *TrainingHandler) GetQuestion(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_question")
	defer observability.FinishSpan(span, nil)

	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeSessionID(sessionID))

	question, err := h.assessmentService.NextQuestion(ctx, sessionID)
	if err != nil {
		if !contextutils.IsError(err, contextutils.ErrNoTopics) && !contextutils.IsError(err, contextutils.ErrSessionNotFound) {
			h.logger.Error(ctx, "Failed to serve question", err, map[string]interface{}{"session_id": sessionID})
		}
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// SubmitAnswer grades an answer and returns the updated progress
func (h *TrainingHandler) SubmitAnswer(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_answer")
	defer observability.FinishSpan(span, nil)

	var req models.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request", "", err.Error())
		return
	}
	span.SetAttributes(observability.AttributeSessionID(req.SessionID))

	result, err := h.assessmentService.SubmitAnswer(ctx, &req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("answer.correct", result.Correct))
	c.JSON(http.StatusOK, result)
}

// GetSession returns one session
func (h *TrainingHandler) GetSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_session")
	defer observability.FinishSpan(span, nil)

	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.assessmentService.GetSession(ctx, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetCurrentSession returns the session this browser started last
func (h *TrainingHandler) GetCurrentSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_current_session")
	defer observability.FinishSpan(span, nil)

	sessionID, ok := LastSessionID(c)
	if !ok {
		HandleAppError(c, contextutils.ErrSessionNotFound)
		return
	}

	session, err := h.assessmentService.GetSession(ctx, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetSessionHistory lists the questions served in a session, oldest first
func (h *TrainingHandler) GetSessionHistory(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_session_history")
	defer observability.FinishSpan(span, nil)

	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	history, err := h.assessmentService.GetSessionHistory(ctx, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if history == nil {
		history = []models.QuestionHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "history": history})
}

// GetUserTopicScores lists a user's per-topic scores
func (h *TrainingHandler) GetUserTopicScores(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_user_topic_scores")
	defer observability.FinishSpan(span, nil)

	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}

	scores, err := h.assessmentService.GetUserTopicScores(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if scores == nil {
		scores = []models.TopicScore{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "topic_scores": scores})
}
