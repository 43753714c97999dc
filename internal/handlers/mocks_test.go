package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

// newTestRouter returns a test-mode engine with the cookie session middleware installed
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions(config.SessionName, cookie.NewStore([]byte("test-secret"))))
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func intPtr(v int) *int { return &v }

type mockAssessmentService struct{ mock.Mock }

func (m *mockAssessmentService) StartSession(ctx context.Context, userID int, projectID, topicID *int) (*models.AssessmentSession, error) {
	args := m.Called(ctx, userID, projectID, topicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentSession), args.Error(1)
}

func (m *mockAssessmentService) GetSession(ctx context.Context, sessionID int) (*models.AssessmentSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AssessmentSession), args.Error(1)
}

func (m *mockAssessmentService) NextQuestion(ctx context.Context, sessionID int) (*models.ServedQuestion, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServedQuestion), args.Error(1)
}

func (m *mockAssessmentService) SubmitAnswer(ctx context.Context, req *models.SubmitAnswerRequest) (*models.AnswerResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnswerResult), args.Error(1)
}

func (m *mockAssessmentService) GetSessionHistory(ctx context.Context, sessionID int) ([]models.QuestionHistory, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QuestionHistory), args.Error(1)
}

func (m *mockAssessmentService) GetUserTopicScores(ctx context.Context, userID int) ([]models.TopicScore, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TopicScore), args.Error(1)
}

type mockIngestionService struct{ mock.Mock }

func (m *mockIngestionService) Submit(ctx context.Context, filename string, data []byte, projectID *int, jobContext string) (*models.ProcessingJob, error) {
	args := m.Called(ctx, filename, data, projectID, jobContext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingJob), args.Error(1)
}

func (m *mockIngestionService) Reprocess(ctx context.Context, req services.ReprocessRequest) (*models.ProcessingJob, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingJob), args.Error(1)
}

func (m *mockIngestionService) ProcessJob(ctx context.Context, jobID int) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *mockIngestionService) Extract(ctx context.Context, req services.ExtractionRequest) (*models.ExtractionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExtractionResult), args.Error(1)
}

type mockProjectService struct{ mock.Mock }

func (m *mockProjectService) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	args := m.Called(ctx, name, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *mockProjectService) ListProjects(ctx context.Context) ([]models.Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *mockProjectService) GetProject(ctx context.Context, id int) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *mockProjectService) UpdateProject(ctx context.Context, id int, name, description string) (*models.Project, error) {
	args := m.Called(ctx, id, name, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *mockProjectService) DeleteProject(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

type mockTopicService struct{ mock.Mock }

func (m *mockTopicService) GetTopic(ctx context.Context, id int) (*models.Topic, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Topic), args.Error(1)
}

func (m *mockTopicService) RandomTopic(ctx context.Context, projectID *int) (*models.Topic, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Topic), args.Error(1)
}

func (m *mockTopicService) ListTopics(ctx context.Context, projectID *int) ([]models.Topic, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Topic), args.Error(1)
}

func (m *mockTopicService) UpsertTopic(ctx context.Context, projectID *int, name, description string) (*models.Topic, bool, error) {
	args := m.Called(ctx, projectID, name, description)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Topic), args.Bool(1), args.Error(2)
}

type mockJobService struct{ mock.Mock }

func (m *mockJobService) CreateJob(ctx context.Context, filename, storageKey string, projectID *int, jobContext string) (*models.ProcessingJob, error) {
	args := m.Called(ctx, filename, storageKey, projectID, jobContext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingJob), args.Error(1)
}

func (m *mockJobService) GetJob(ctx context.Context, id int) (*models.ProcessingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingJob), args.Error(1)
}

func (m *mockJobService) ListJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProcessingJob), args.Error(1)
}

func (m *mockJobService) ListPendingJobIDs(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *mockJobService) FailOrphanedJobs(ctx context.Context, staleAfter time.Duration) ([]int, error) {
	args := m.Called(ctx, staleAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *mockJobService) FindLatestJobByFilename(ctx context.Context, filename string) (*models.ProcessingJob, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingJob), args.Error(1)
}

func (m *mockJobService) MarkProcessing(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockJobService) MarkCompleted(ctx context.Context, id int, message string, topicsCreated, questionsGenerated int) error {
	return m.Called(ctx, id, message, topicsCreated, questionsGenerated).Error(0)
}

func (m *mockJobService) MarkFailed(ctx context.Context, id int, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

type mockKnowledgeBaseService struct{ mock.Mock }

func (m *mockKnowledgeBaseService) IndexDocument(ctx context.Context, job *models.ProcessingJob, text string) (int, error) {
	args := m.Called(ctx, job, text)
	return args.Int(0), args.Error(1)
}

func (m *mockKnowledgeBaseService) Search(ctx context.Context, query string, projectID *int, limit int) ([]models.SearchResult, error) {
	args := m.Called(ctx, query, projectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchResult), args.Error(1)
}

func (m *mockKnowledgeBaseService) ContextFor(ctx context.Context, query string, projectID *int) (string, error) {
	args := m.Called(ctx, query, projectID)
	return args.String(0), args.Error(1)
}

func (m *mockKnowledgeBaseService) ListFiles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockKnowledgeBaseService) Reset(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) IssueToken(ctx context.Context, username, password string) (*services.TokenResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenResponse), args.Error(1)
}

func (m *mockAuthService) VerifyToken(ctx context.Context, token string) (*services.TokenClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenClaims), args.Error(1)
}

type mockWorkerService struct{ mock.Mock }

func (m *mockWorkerService) GetSetting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockWorkerService) SetSetting(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockWorkerService) IsGlobalPaused(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockWorkerService) SetGlobalPause(ctx context.Context, paused bool) error {
	return m.Called(ctx, paused).Error(0)
}

func (m *mockWorkerService) UpdateWorkerStatus(ctx context.Context, status *models.WorkerStatus) error {
	return m.Called(ctx, status).Error(0)
}

func (m *mockWorkerService) GetAllWorkerStatuses(ctx context.Context) ([]models.WorkerStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WorkerStatus), args.Error(1)
}

func (m *mockWorkerService) UpdateHeartbeat(ctx context.Context, instance string) error {
	return m.Called(ctx, instance).Error(0)
}

func (m *mockWorkerService) GetWorkerHealth(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

type mockAIService struct{ mock.Mock }

func (m *mockAIService) ExtractTopics(ctx context.Context, documentText, focus string) ([]string, error) {
	args := m.Called(ctx, documentText, focus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockAIService) GenerateQuestionSet(ctx context.Context, topic string, level models.Level, count int, contextText string) ([]models.GeneratedQuestion, error) {
	args := m.Called(ctx, topic, level, count, contextText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GeneratedQuestion), args.Error(1)
}

func (m *mockAIService) GenerateQuestion(ctx context.Context, topic string, level models.Level, contextText string) (*models.GeneratedQuestion, error) {
	args := m.Called(ctx, topic, level, contextText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedQuestion), args.Error(1)
}

func (m *mockAIService) CheckEquivalence(ctx context.Context, questionText, correctAnswer, userAnswer string) (bool, error) {
	args := m.Called(ctx, questionText, correctAnswer, userAnswer)
	return args.Bool(0), args.Error(1)
}

func (m *mockAIService) ExplainAnswer(ctx context.Context, questionText, userAnswer, correctAnswer string) (string, error) {
	args := m.Called(ctx, questionText, userAnswer, correctAnswer)
	return args.String(0), args.Error(1)
}

func (m *mockAIService) GetConcurrencyStats() services.ConcurrencyStats {
	return m.Called().Get(0).(services.ConcurrencyStats)
}

func (m *mockAIService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
