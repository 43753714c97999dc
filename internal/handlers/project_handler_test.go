package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newProjectRouter(projects *mockProjectService, topics *mockTopicService) *gin.Engine {
	router := newTestRouter()
	h := NewProjectHandler(projects, topics, testLogger())
	router.POST("/projects", h.CreateProject)
	router.GET("/projects", h.ListProjects)
	router.GET("/projects/:id", h.GetProject)
	router.PUT("/projects/:id", h.UpdateProject)
	router.DELETE("/projects/:id", h.DeleteProject)
	router.GET("/projects/:id/topics", h.ListProjectTopics)
	return router
}

func TestCreateProject(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		projects := &mockProjectService{}
		projects.On("CreateProject", mock.Anything, "Acme Rollout", "Q3 launch").Return(&models.Project{
			ID:          1,
			Name:        "Acme Rollout",
			Description: sql.NullString{String: "Q3 launch", Valid: true},
		}, nil)

		w := serve(newProjectRouter(projects, &mockTopicService{}), jsonRequest("POST", "/projects", `{"name": "Acme Rollout", "description": "Q3 launch"}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Acme Rollout", response["name"])
		assert.Equal(t, "Q3 launch", response["description"])
	})

	t.Run("duplicate name", func(t *testing.T) {
		projects := &mockProjectService{}
		projects.On("CreateProject", mock.Anything, "Acme Rollout", "").Return(nil, services.ErrProjectExists)

		w := serve(newProjectRouter(projects, &mockTopicService{}), jsonRequest("POST", "/projects", `{"name": "Acme Rollout"}`))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		projects := &mockProjectService{}
		w := serve(newProjectRouter(projects, &mockTopicService{}), jsonRequest("POST", "/projects", `{"description": "x"}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		projects.AssertNotCalled(t, "CreateProject", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListProjects_EmptyIsArray(t *testing.T) {
	projects := &mockProjectService{}
	projects.On("ListProjects", mock.Anything).Return(nil, nil)

	req, _ := http.NewRequest("GET", "/projects", nil)
	w := serve(newProjectRouter(projects, &mockTopicService{}), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetProject_NotFound(t *testing.T) {
	projects := &mockProjectService{}
	projects.On("GetProject", mock.Anything, 5).Return(nil, contextutils.ErrProjectNotFound)

	req, _ := http.NewRequest("GET", "/projects/5", nil)
	w := serve(newProjectRouter(projects, &mockTopicService{}), req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAndDeleteProject(t *testing.T) {
	projects := &mockProjectService{}
	projects.On("UpdateProject", mock.Anything, 2, "Renamed", "").Return(&models.Project{ID: 2, Name: "Renamed"}, nil)
	projects.On("DeleteProject", mock.Anything, 2).Return(nil)
	router := newProjectRouter(projects, &mockTopicService{})

	w := serve(router, jsonRequest("PUT", "/projects/2", `{"name": "Renamed"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ := http.NewRequest("DELETE", "/projects/2", nil)
	w = serve(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	projects.AssertExpectations(t)
}

func TestListProjectTopics(t *testing.T) {
	t.Run("lists topics for the project", func(t *testing.T) {
		projects := &mockProjectService{}
		topics := &mockTopicService{}
		projects.On("GetProject", mock.Anything, 3).Return(&models.Project{ID: 3, Name: "Acme"}, nil)
		topics.On("ListTopics", mock.Anything, intPtr(3)).Return([]models.Topic{
			{ID: 10, ProjectID: intPtr(3), Name: "Pricing"},
			{ID: 11, ProjectID: intPtr(3), Name: "Security"},
		}, nil)

		req, _ := http.NewRequest("GET", "/projects/3/topics", nil)
		w := serve(newProjectRouter(projects, topics), req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response []models.Topic
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response, 2)
	})

	t.Run("unknown project", func(t *testing.T) {
		projects := &mockProjectService{}
		topics := &mockTopicService{}
		projects.On("GetProject", mock.Anything, 9).Return(nil, contextutils.ErrProjectNotFound)

		req, _ := http.NewRequest("GET", "/projects/9/topics", nil)
		w := serve(newProjectRouter(projects, topics), req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		topics.AssertNotCalled(t, "ListTopics", mock.Anything, mock.Anything)
	})
}
