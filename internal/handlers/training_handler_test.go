package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type trainingFixture struct {
	router     *gin.Engine
	assessment *mockAssessmentService
	ingestion  *mockIngestionService
}

func newTrainingFixture(cfg *config.Config) *trainingFixture {
	f := &trainingFixture{
		router:     newTestRouter(),
		assessment: &mockAssessmentService{},
		ingestion:  &mockIngestionService{},
	}
	h := NewTrainingHandler(f.assessment, f.ingestion, cfg, testLogger())
	f.router.POST("/upload_pdf", h.UploadPDF)
	f.router.POST("/start_assessment", h.StartAssessment)
	f.router.GET("/get_question/:session_id", h.GetQuestion)
	f.router.POST("/submit_answer", h.SubmitAnswer)
	f.router.GET("/sessions/current", h.GetCurrentSession)
	f.router.GET("/sessions/:session_id", h.GetSession)
	f.router.GET("/sessions/:session_id/history", h.GetSessionHistory)
	f.router.GET("/users/:user_id/topic_scores", h.GetUserTopicScores)
	return f
}

func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest("POST", "/upload_pdf", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadPDF_QueuesJob(t *testing.T) {
	f := newTrainingFixture(&config.Config{})
	content := []byte("%PDF-1.4 product overview")
	f.ingestion.On("Submit", mock.Anything, "overview.pdf", content, intPtr(3), "pricing").
		Return(&models.ProcessingJob{ID: 12, Filename: "overview.pdf", Status: models.JobPending, Message: "Queued for processing"}, nil)

	w := serve(f.router, multipartUpload(t, "overview.pdf", content, map[string]string{"project_id": "3", "context": "pricing"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "queued", response["status"])
	assert.Equal(t, float64(12), response["job_id"])
	assert.Equal(t, "Queued for processing", response["message"])
	f.ingestion.AssertExpectations(t)
}

func TestUploadPDF_Validation(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		req, _ := http.NewRequest("POST", "/upload_pdf", strings.NewReader(""))
		w := serve(f.router, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("file too large", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{Server: config.ServerConfig{MaxUploadBytes: 8}})
		w := serve(f.router, multipartUpload(t, "big.pdf", []byte("0123456789abcdef"), nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		f.ingestion.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bad project id", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		w := serve(f.router, multipartUpload(t, "a.pdf", []byte("%PDF"), map[string]string{"project_id": "abc"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unreadable document", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.ingestion.On("Submit", mock.Anything, "notes.txt", []byte("plain"), (*int)(nil), "").
			Return(nil, contextutils.ErrDocumentUnreadable)
		w := serve(f.router, multipartUpload(t, "notes.txt", []byte("plain"), nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStartAssessment_RemembersSession(t *testing.T) {
	f := newTrainingFixture(&config.Config{})
	session := &models.AssessmentSession{ID: 7, UserID: 1, CurrentLevel: models.LevelBeginner}
	f.assessment.On("StartSession", mock.Anything, 1, (*int)(nil), (*int)(nil)).Return(session, nil)
	f.assessment.On("GetSession", mock.Anything, 7).Return(session, nil)

	w := serve(f.router, jsonRequest("POST", "/start_assessment", `{"user_id": 1}`))
	require.Equal(t, http.StatusOK, w.Code)

	var started map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, float64(7), started["session_id"])
	assert.Equal(t, "Beginner", started["current_level"])

	req, _ := http.NewRequest("GET", "/sessions/current", nil)
	for _, cookie := range w.Result().Cookies() {
		req.AddCookie(cookie)
	}
	current := serve(f.router, req)
	assert.Equal(t, http.StatusOK, current.Code)
	f.assessment.AssertExpectations(t)
}

func TestStartAssessment_Errors(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		w := serve(f.router, jsonRequest("POST", "/start_assessment", `{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown project", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.assessment.On("StartSession", mock.Anything, 1, intPtr(99), (*int)(nil)).Return(nil, contextutils.ErrProjectNotFound)
		w := serve(f.router, jsonRequest("POST", "/start_assessment", `{"user_id": 1, "project_id": 99}`))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetCurrentSession_NoCookie(t *testing.T) {
	f := newTrainingFixture(&config.Config{})
	req, _ := http.NewRequest("GET", "/sessions/current", nil)
	w := serve(f.router, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetQuestion(t *testing.T) {
	t.Run("serves question", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.assessment.On("NextQuestion", mock.Anything, 7).Return(&models.ServedQuestion{
			SessionID: 7,
			HistoryID: 31,
			Level:     models.LevelBeginner,
			Topic:     "Pricing",
			Question:  "Which tier includes SSO?",
			Options:   []string{"Basic", "Pro", "Enterprise", "None"},
			Source:    models.SourceBank,
		}, nil)

		req, _ := http.NewRequest("GET", "/get_question/7", nil)
		w := serve(f.router, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, float64(31), response["history_id"])
		assert.Len(t, response["options"], 4)
	})

	t.Run("no topics", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.assessment.On("NextQuestion", mock.Anything, 7).Return(nil, contextutils.ErrNoTopics)

		req, _ := http.NewRequest("GET", "/get_question/7", nil)
		w := serve(f.router, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "NO_TOPICS", response["code"])
	})

	t.Run("invalid session id", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		req, _ := http.NewRequest("GET", "/get_question/abc", nil)
		w := serve(f.router, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.assessment.AssertNotCalled(t, "NextQuestion", mock.Anything, mock.Anything)
	})
}

func TestSubmitAnswer(t *testing.T) {
	t.Run("graded", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.assessment.On("SubmitAnswer", mock.Anything, mock.MatchedBy(func(req *models.SubmitAnswerRequest) bool {
			return req.SessionID == 7 && req.HistoryID != nil && *req.HistoryID == 31 && req.UserAnswer == "Enterprise"
		})).Return(&models.AnswerResult{
			Correct:      true,
			Feedback:     "Correct!",
			CurrentScore: 10,
			CurrentLevel: models.LevelBeginner,
			TopicScore:   10,
		}, nil)

		w := serve(f.router, jsonRequest("POST", "/submit_answer", `{"session_id": 7, "history_id": 31, "user_answer": "Enterprise"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, true, response["correct"])
		assert.Equal(t, float64(10), response["current_score"])
	})

	t.Run("already answered", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		f.assessment.On("SubmitAnswer", mock.Anything, mock.Anything).Return(nil, contextutils.ErrQuestionAlreadyAnswered)

		w := serve(f.router, jsonRequest("POST", "/submit_answer", `{"session_id": 7, "history_id": 31, "user_answer": "Pro"}`))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing session id", func(t *testing.T) {
		f := newTrainingFixture(&config.Config{})
		w := serve(f.router, jsonRequest("POST", "/submit_answer", `{"user_answer": "Pro"}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetSessionHistory_EmptyIsArray(t *testing.T) {
	f := newTrainingFixture(&config.Config{})
	f.assessment.On("GetSessionHistory", mock.Anything, 7).Return(nil, nil)

	req, _ := http.NewRequest("GET", "/sessions/7/history", nil)
	w := serve(f.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id": 7, "history": []}`, w.Body.String())
}

func TestGetUserTopicScores(t *testing.T) {
	f := newTrainingFixture(&config.Config{})
	f.assessment.On("GetUserTopicScores", mock.Anything, 1).Return([]models.TopicScore{
		{UserID: 1, TopicID: 4, TopicName: "Pricing", Score: 20, ProficiencyLevel: models.LevelIntermediate},
	}, nil)

	req, _ := http.NewRequest("GET", "/users/1/topic_scores", nil)
	w := serve(f.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		UserID      int                 `json:"user_id"`
		TopicScores []models.TopicScore `json:"topic_scores"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.UserID)
	require.Len(t, response.TopicScores, 1)
	assert.Equal(t, models.LevelIntermediate, response.TopicScores[0].ProficiencyLevel)
}
