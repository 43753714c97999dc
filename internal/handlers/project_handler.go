package handlers

import (
	"net/http"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
)

// ProjectRequest is the body for creating or updating a project
type ProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ProjectHandler serves project CRUD and project topic listings
type ProjectHandler struct {
	projectService services.ProjectServiceInterface
	topicService   services.TopicServiceInterface
	logger         *observability.Logger
}

// NewProjectHandler creates a new ProjectHandler
func NewProjectHandler(projectService services.ProjectServiceInterface, topicService services.TopicServiceInterface, logger *observability.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		topicService:   topicService,
		logger:         logger,
	}
}

// CreateProject creates a project. Duplicate names give 409.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_project")
	defer observability.FinishSpan(span, nil)

	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request", "", err.Error())
		return
	}

	project, err := h.projectService.CreateProject(ctx, req.Name, req.Description)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Project created", map[string]interface{}{"project_id": project.ID, "name": project.Name})
	c.JSON(http.StatusCreated, project)
}

// ListProjects returns every project
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_projects")
	defer observability.FinishSpan(span, nil)

	projects, err := h.projectService.ListProjects(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

// GetProject returns one project
func (h *ProjectHandler) GetProject(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_project")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	project, err := h.projectService.GetProject(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject renames a project
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_project")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request", "", err.Error())
		return
	}

	project, err := h.projectService.UpdateProject(ctx, id, req.Name, req.Description)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject removes a project
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_project")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.projectService.DeleteProject(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "Project deleted", map[string]interface{}{
		"project_id":    id,
		"admin_user_id": contextutils.GetUserIDFromContext(ctx),
	})
	c.Status(http.StatusNoContent)
}

// ListProjectTopics returns the topics extracted into a project
func (h *ProjectHandler) ListProjectTopics(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_project_topics")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeProjectID(&id))

	if _, err := h.projectService.GetProject(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	topics, err := h.topicService.ListTopics(ctx, &id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if topics == nil {
		topics = []models.Topic{}
	}
	c.JSON(http.StatusOK, topics)
}
