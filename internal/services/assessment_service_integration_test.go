//go:build integration

package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/models"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type assessmentFixture struct {
	db         *sql.DB
	ai         *mockAIService
	projects   *ProjectService
	topics     *TopicService
	bank       *QuestionBankService
	history    *HistoryService
	assessment *AssessmentService
}

func newAssessmentFixture(t *testing.T) *assessmentFixture {
	db := SharedTestDBSetup(t)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.Assessment.SemanticEvaluation = false
	logger := testLogger()
	ai := &mockAIService{}

	f := &assessmentFixture{
		db:       db,
		ai:       ai,
		projects: NewProjectService(db, logger),
		topics:   NewTopicService(db, logger),
		bank:     NewQuestionBankService(db, logger),
		history:  NewHistoryService(db, logger),
	}
	users := NewUserServiceWithLogger(db, cfg, logger)
	selector := NewQuestionSelector(f.topics, f.bank, f.history, nil, ai, logger)
	evaluator := NewAnswerEvaluator(ai, cfg, logger)
	f.assessment = NewAssessmentService(db, users, f.projects, f.topics, f.history, selector, evaluator, logger)
	return f
}

func (f *assessmentFixture) seedTopic(t *testing.T, projectID *int, name string, level models.Level, count int) *models.Topic {
	t.Helper()
	topic, _, err := f.topics.UpsertTopic(context.Background(), projectID, name, "seeded")
	require.NoError(t, err)

	questions := make([]models.GeneratedQuestion, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, models.GeneratedQuestion{
			QuestionText:  fmt.Sprintf("%s %s question %d", name, level, i),
			Choices:       []string{"Right", "Wrong 1", "Wrong 2", "Wrong 3"},
			CorrectAnswer: "Right",
		})
	}
	n, err := f.bank.InsertQuestions(context.Background(), topic.ID, level, questions, nil)
	require.NoError(t, err)
	require.Equal(t, count, n)
	return topic
}

func TestAssessmentService_FullSession_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	project, err := f.projects.CreateProject(ctx, "Enterprise", "")
	require.NoError(t, err)
	topic := f.seedTopic(t, &project.ID, "Discovery", models.LevelBeginner, 8)
	f.ai.On("ExplainAnswer", mock.Anything, mock.Anything, "Wrong 1", "Right").Return("Discovery comes first.", nil)

	session, err := f.assessment.StartSession(ctx, 77, &project.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.LevelBeginner, session.CurrentLevel)
	assert.Equal(t, 0, session.Score)

	// Correct answer by history id
	q1, err := f.assessment.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceBank, q1.Source)
	assert.Equal(t, topic.ID, q1.TopicID)
	assert.Equal(t, 1, q1.ServingSeq)

	result, err := f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, HistoryID: &q1.HistoryID, UserAnswer: " right "})
	require.NoError(t, err)
	assert.True(t, result.Correct)
	assert.Equal(t, 10, result.CurrentScore)
	assert.Equal(t, 10, result.TopicScore)

	_, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, HistoryID: &q1.HistoryID, UserAnswer: "Right"})
	assert.True(t, contextutils.IsError(err, contextutils.ErrQuestionAlreadyAnswered))

	// Wrong answer by question text keeps score and reports the current topic score
	q2, err := f.assessment.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, q1.Question, q2.Question)
	result, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, QuestionText: q2.Question, UserAnswer: "Wrong 1"})
	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.Equal(t, "Discovery comes first.", result.Feedback)
	assert.Equal(t, 10, result.CurrentScore)
	assert.Equal(t, 10, result.TopicScore)

	// Four more correct answers reach the intermediate threshold
	for i := 0; i < 4; i++ {
		q, err := f.assessment.NextQuestion(ctx, session.ID)
		require.NoError(t, err)
		result, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, HistoryID: &q.HistoryID, UserAnswer: "Right"})
		require.NoError(t, err)
	}
	assert.Equal(t, 50, result.CurrentScore)
	assert.Equal(t, models.LevelIntermediate, result.CurrentLevel)
	assert.Equal(t, 50, result.TopicScore)
	assert.Equal(t, models.LevelIntermediate, result.TopicProficiency)

	history, err := f.assessment.GetSessionHistory(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, h := range history {
		assert.Equal(t, i+1, h.ServingSeq)
		assert.False(t, h.IsPending())
	}

	scores, err := f.assessment.GetUserTopicScores(ctx, 77)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "Discovery", scores[0].TopicName)
	assert.Equal(t, 50, scores[0].Score)
}

func TestAssessmentService_UnscopedTenCorrectAnswers_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	topic := f.seedTopic(t, nil, "Objection Handling", models.LevelBeginner, 6)
	f.seedTopic(t, nil, "Objection Handling", models.LevelIntermediate, 6)

	session, err := f.assessment.StartSession(ctx, 88, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, session.ProjectID)
	assert.Equal(t, 0, session.Score)
	assert.Equal(t, models.LevelBeginner, session.CurrentLevel)

	var result *models.AnswerResult
	for i := 0; i < 10; i++ {
		q, err := f.assessment.NextQuestion(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, topic.ID, q.TopicID)
		assert.Equal(t, models.SourceBank, q.Source)
		result, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, HistoryID: &q.HistoryID, UserAnswer: "Right"})
		require.NoError(t, err)
		require.True(t, result.Correct)
	}

	assert.Equal(t, 100, result.CurrentScore)
	assert.Equal(t, models.LevelAdvanced, result.CurrentLevel)

	stored, err := f.assessment.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Score)
	assert.Equal(t, models.LevelAdvanced, stored.CurrentLevel)
}

func TestAssessmentService_FirstAnswerWrongReportsBeginner_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	f.seedTopic(t, nil, "Closing", models.LevelBeginner, 2)
	f.ai.On("ExplainAnswer", mock.Anything, mock.Anything, "Wrong 2", "Right").Return("Ask for the signature.", nil)

	session, err := f.assessment.StartSession(ctx, 90, nil, nil)
	require.NoError(t, err)
	q, err := f.assessment.NextQuestion(ctx, session.ID)
	require.NoError(t, err)

	result, err := f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, HistoryID: &q.HistoryID, UserAnswer: "Wrong 2"})
	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.Equal(t, 0, result.TopicScore)
	assert.Equal(t, models.LevelBeginner, result.TopicProficiency)
}

func TestAssessmentService_StartSessionValidation_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	a, err := f.projects.CreateProject(ctx, "A", "")
	require.NoError(t, err)
	b, err := f.projects.CreateProject(ctx, "B", "")
	require.NoError(t, err)
	topic := f.seedTopic(t, &a.ID, "Pricing", models.LevelBeginner, 1)

	_, err = f.assessment.StartSession(ctx, 1, &b.ID, &topic.ID)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput), "got %v", err)

	missing := 999
	_, err = f.assessment.StartSession(ctx, 1, nil, &missing)
	assert.True(t, contextutils.IsError(err, contextutils.ErrTopicNotFound))

	_, err = f.assessment.StartSession(ctx, 1, &missing, nil)
	assert.True(t, contextutils.IsError(err, contextutils.ErrProjectNotFound))

	session, err := f.assessment.StartSession(ctx, 1, &a.ID, &topic.ID)
	require.NoError(t, err)
	assert.Equal(t, topic.ID, *session.TopicID)
}

func TestAssessmentService_UnknownSession_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	_, err := f.assessment.NextQuestion(ctx, 12345)
	assert.True(t, contextutils.IsError(err, contextutils.ErrSessionNotFound))

	_, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: 12345, QuestionText: "x", UserAnswer: "y"})
	assert.True(t, contextutils.IsError(err, contextutils.ErrSessionNotFound))

	_, err = f.assessment.GetSessionHistory(ctx, 12345)
	assert.True(t, contextutils.IsError(err, contextutils.ErrSessionNotFound))
}

func TestAssessmentService_SubmitUnknownQuestion_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	session, err := f.assessment.StartSession(ctx, 5, nil, nil)
	require.NoError(t, err)

	_, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, QuestionText: "never served", UserAnswer: "y"})
	assert.True(t, contextutils.IsError(err, contextutils.ErrQuestionNotFound))

	_, err = f.assessment.SubmitAnswer(ctx, &models.SubmitAnswerRequest{SessionID: session.ID, UserAnswer: "y"})
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
}

func TestAssessmentService_NoTopics_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	session, err := f.assessment.StartSession(ctx, 3, nil, nil)
	require.NoError(t, err)
	_, err = f.assessment.NextQuestion(ctx, session.ID)
	assert.True(t, contextutils.IsError(err, contextutils.ErrNoTopics))
}

func TestHistoryService_FindLatestByText_PrefersPending_Integration(t *testing.T) {
	f := newAssessmentFixture(t)
	ctx := context.Background()

	topic := f.seedTopic(t, nil, "Renewals", models.LevelBeginner, 1)
	session, err := f.assessment.StartSession(ctx, 12, nil, nil)
	require.NoError(t, err)

	serve := func() *models.QuestionHistory {
		entry := &models.QuestionHistory{
			SessionID:     session.ID,
			TopicID:       topic.ID,
			QuestionText:  "When do you open the renewal?",
			Choices:       []string{"Right", "Wrong 1"},
			CorrectAnswer: "Right",
			Source:        models.SourceBank,
		}
		require.NoError(t, f.history.RecordServedQuestion(ctx, entry))
		return entry
	}
	answer := func(id int) {
		_, err := f.db.ExecContext(ctx, `UPDATE question_history SET user_answer = 'Right', is_correct = TRUE, answered_at = NOW() WHERE id = $1`, id)
		require.NoError(t, err)
	}

	older := serve()
	newer := serve()
	answer(newer.ID)

	found, err := f.history.FindLatestByText(ctx, session.ID, "When do you open the renewal?")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, older.ID, found.ID)

	answer(older.ID)
	found, err = f.history.FindLatestByText(ctx, session.ID, "When do you open the renewal?")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)

	missing, err := f.history.FindLatestByText(ctx, session.ID, "never served")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
