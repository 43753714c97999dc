package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	router    *gin.Engine
	jobs      *mockJobService
	kb        *mockKnowledgeBaseService
	ingestion *mockIngestionService
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		router:    newTestRouter(),
		jobs:      &mockJobService{},
		kb:        &mockKnowledgeBaseService{},
		ingestion: &mockIngestionService{},
	}
	cfg := &config.Config{KnowledgeBase: config.KnowledgeBaseConfig{SearchLimit: 5}}
	h := NewAdminHandlerWithLogger(f.jobs, f.kb, f.ingestion, cfg, testLogger())
	f.router.GET("/admin/jobs", h.ListJobs)
	f.router.GET("/admin/jobs/:id", h.GetJob)
	f.router.GET("/admin/knowledge_base/files", h.ListKnowledgeBaseFiles)
	f.router.GET("/admin/knowledge_base/search", h.SearchKnowledgeBase)
	f.router.POST("/admin/knowledge_base/reprocess", h.ReprocessDocument)
	return f
}

func TestListJobs_LimitClamped(t *testing.T) {
	f := newAdminFixture()
	f.jobs.On("ListJobs", mock.Anything, maxJobListLimit).Return([]models.ProcessingJob{
		{ID: 2, Filename: "b.pdf", Status: models.JobCompleted, StorageKey: "uploads/secret"},
	}, nil)

	req, _ := http.NewRequest("GET", "/admin/jobs?limit=100000", nil)
	w := serve(f.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "uploads/secret")
	f.jobs.AssertExpectations(t)
}

func TestGetJob(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newAdminFixture()
		f.jobs.On("GetJob", mock.Anything, 4).Return(&models.ProcessingJob{ID: 4, Status: models.JobFailed, Message: "Failed: no text"}, nil)

		req, _ := http.NewRequest("GET", "/admin/jobs/4", nil)
		w := serve(f.router, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Failed: no text")
	})

	t.Run("missing", func(t *testing.T) {
		f := newAdminFixture()
		f.jobs.On("GetJob", mock.Anything, 4).Return(nil, contextutils.ErrJobNotFound)

		req, _ := http.NewRequest("GET", "/admin/jobs/4", nil)
		w := serve(f.router, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListKnowledgeBaseFiles(t *testing.T) {
	f := newAdminFixture()
	f.kb.On("ListFiles", mock.Anything).Return([]string{"a.pdf", "b.pdf"}, nil)

	req, _ := http.NewRequest("GET", "/admin/knowledge_base/files", nil)
	w := serve(f.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"files": ["a.pdf", "b.pdf"]}`, w.Body.String())
}

func TestSearchKnowledgeBase(t *testing.T) {
	long := strings.Repeat("é", 250)
	f := newAdminFixture()
	f.kb.On("Search", mock.Anything, "pricing tiers", intPtr(2), 5).Return([]models.SearchResult{
		{Text: long, Score: 0.8, Filename: "deck.pdf"},
		{Text: "short chunk", Score: 0.4, Filename: "faq.pdf"},
	}, nil)

	req, _ := http.NewRequest("GET", "/admin/knowledge_base/search?query=pricing+tiers&project_id=2", nil)
	w := serve(f.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Query   string      `json:"query"`
		Results []SearchHit `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "pricing tiers", response.Query)
	require.Len(t, response.Results, 2)
	assert.Equal(t, strings.Repeat("é", searchPreviewRunes)+"...", response.Results[0].Text)
	assert.Equal(t, "short chunk...", response.Results[1].Text)
	assert.Equal(t, "deck.pdf", response.Results[0].Filename)
}

func TestSearchKnowledgeBase_Validation(t *testing.T) {
	f := newAdminFixture()

	req, _ := http.NewRequest("GET", "/admin/knowledge_base/search", nil)
	assert.Equal(t, http.StatusBadRequest, serve(f.router, req).Code)

	req, _ = http.NewRequest("GET", "/admin/knowledge_base/search?query=x&project_id=-1", nil)
	assert.Equal(t, http.StatusBadRequest, serve(f.router, req).Code)

	f.kb.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReprocessDocument(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		f := newAdminFixture()
		f.ingestion.On("Reprocess", mock.Anything, services.ReprocessRequest{Filename: "deck.pdf"}).Return(&models.ProcessingJob{
			ID:       9,
			Filename: "deck.pdf",
			Status:   models.JobPending,
			Message:  "Queued for processing",
		}, nil)

		w := serve(f.router, jsonRequest("POST", "/admin/knowledge_base/reprocess", `{"filename": "deck.pdf"}`))

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, float64(9), response["job_id"])
		assert.Equal(t, "queued", response["status"])
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newAdminFixture()
		f.ingestion.On("Reprocess", mock.Anything, mock.Anything).Return(nil, contextutils.ErrJobNotFound)

		w := serve(f.router, jsonRequest("POST", "/admin/knowledge_base/reprocess", `{"job_id": 77}`))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "abc...", previewText("abc"))
	assert.Equal(t, strings.Repeat("x", searchPreviewRunes)+"...", previewText(strings.Repeat("x", searchPreviewRunes+1)))
}
