package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// AssessmentServiceInterface drives adaptive assessment sessions
type AssessmentServiceInterface interface {
	StartSession(ctx context.Context, userID int, projectID, topicID *int) (*models.AssessmentSession, error)
	GetSession(ctx context.Context, sessionID int) (*models.AssessmentSession, error)
	NextQuestion(ctx context.Context, sessionID int) (*models.ServedQuestion, error)
	SubmitAnswer(ctx context.Context, req *models.SubmitAnswerRequest) (*models.AnswerResult, error)
	GetSessionHistory(ctx context.Context, sessionID int) ([]models.QuestionHistory, error)
	GetUserTopicScores(ctx context.Context, userID int) ([]models.TopicScore, error)
}

// AssessmentService owns sessions and topic scores and coordinates selection and grading
type AssessmentService struct {
	db        *sql.DB
	users     UserServiceInterface
	projects  ProjectServiceInterface
	topics    TopicServiceInterface
	history   HistoryServiceInterface
	selector  QuestionSelectorInterface
	evaluator AnswerEvaluatorInterface
	logger    *observability.Logger
}

const sessionSelectFields = `id, user_id, project_id, topic_id, current_level, score, started_at, updated_at`

// NewAssessmentService creates a new AssessmentService
func NewAssessmentService(
	db *sql.DB,
	users UserServiceInterface,
	projects ProjectServiceInterface,
	topics TopicServiceInterface,
	history HistoryServiceInterface,
	selector QuestionSelectorInterface,
	evaluator AnswerEvaluatorInterface,
	logger *observability.Logger,
) *AssessmentService {
	return &AssessmentService{
		db:        db,
		users:     users,
		projects:  projects,
		topics:    topics,
		history:   history,
		selector:  selector,
		evaluator: evaluator,
		logger:    logger,
	}
}

func scanSession(row rowScanner) (result0 *models.AssessmentSession, err error) {
	var s models.AssessmentSession
	var projectID, topicID sql.NullInt64
	var level string
	if err = row.Scan(&s.ID, &s.UserID, &projectID, &topicID, &level, &s.Score, &s.StartedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ProjectID = nullInt64ToIntPointer(projectID)
	s.TopicID = nullInt64ToIntPointer(topicID)
	s.CurrentLevel = models.Level(level)
	return &s, nil
}

// StartSession creates a Beginner session with score 0. An unknown user id gets a "user_<id>" account.
// The optional project and topic must exist, and a pinned topic must belong to the given project.
func (s *AssessmentService) StartSession(ctx context.Context, userID int, projectID, topicID *int) (result0 *models.AssessmentSession, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "start_session",
		observability.AttributeUserID(userID),
		observability.AttributeProjectID(projectID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = s.users.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	if projectID != nil {
		if _, err = s.projects.GetProject(ctx, *projectID); err != nil {
			return nil, err
		}
	}

	if topicID != nil {
		topic, err := s.topics.GetTopic(ctx, *topicID)
		if err != nil {
			return nil, err
		}
		if topic == nil {
			return nil, contextutils.ErrTopicNotFound
		}
		if projectID != nil && (topic.ProjectID == nil || *topic.ProjectID != *projectID) {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "topic %d does not belong to project %d", *topicID, *projectID)
		}
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		INSERT INTO assessment_sessions (user_id, project_id, topic_id, current_level, score, started_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		RETURNING `+sessionSelectFields,
		userID, intPointerArg(projectID), intPointerArg(topicID), string(models.LevelBeginner)))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create session: %v", err)
	}

	span.SetAttributes(observability.AttributeSessionID(session.ID))
	s.logger.Info(ctx, "Assessment session started", map[string]interface{}{
		"session_id": session.ID,
		"user_id":    userID,
		"project_id": projectID,
		"topic_id":   topicID,
	})
	return session, nil
}

// GetSession returns the session or ErrSessionNotFound
func (s *AssessmentService) GetSession(ctx context.Context, sessionID int) (result0 *models.AssessmentSession, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_session", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionSelectFields+` FROM assessment_sessions WHERE id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrSessionNotFound
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get session %d: %v", sessionID, err)
	}
	return session, nil
}

// NextQuestion serves the next question at the session's current level
func (s *AssessmentService) NextQuestion(ctx context.Context, sessionID int) (result0 *models.ServedQuestion, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "next_question", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.selector.Next(ctx, session)
}

// SubmitAnswer grades the answer to a pending serving and applies progression. Grading happens
// outside the transaction; the session row lock serializes concurrent submissions.
func (s *AssessmentService) SubmitAnswer(ctx context.Context, req *models.SubmitAnswerRequest) (result0 *models.AnswerResult, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "submit_answer", observability.AttributeSessionID(req.SessionID))
	defer observability.FinishSpan(span, &err)

	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	entry, err := s.findServing(ctx, req)
	if err != nil {
		return nil, err
	}
	if !entry.IsPending() {
		return nil, contextutils.ErrQuestionAlreadyAnswered
	}
	span.SetAttributes(attribute.Int("history.id", entry.ID), observability.AttributeTopicID(entry.TopicID))

	isCorrect, feedback := s.evaluator.Evaluate(ctx, req.UserAnswer, entry.CorrectAnswer, entry.QuestionText)

	result, err := s.applyAnswer(ctx, session.UserID, entry, req.UserAnswer, isCorrect, feedback)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("answer.correct", result.Correct),
		attribute.Int("session.score", result.CurrentScore),
		observability.AttributeLevel(string(result.CurrentLevel)),
	)
	s.logger.Info(ctx, "Answer submitted", map[string]interface{}{
		"session_id":    req.SessionID,
		"history_id":    entry.ID,
		"correct":       result.Correct,
		"current_score": result.CurrentScore,
		"current_level": string(result.CurrentLevel),
	})
	return result, nil
}

func (s *AssessmentService) findServing(ctx context.Context, req *models.SubmitAnswerRequest) (*models.QuestionHistory, error) {
	var entry *models.QuestionHistory
	var err error
	switch {
	case req.HistoryID != nil:
		entry, err = s.history.GetHistoryEntry(ctx, req.SessionID, *req.HistoryID)
	case strings.TrimSpace(req.QuestionText) != "":
		entry, err = s.history.FindLatestByText(ctx, req.SessionID, req.QuestionText)
	default:
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "history_id or question_text is required")
	}
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, contextutils.ErrQuestionNotFound
	}
	return entry, nil
}

func (s *AssessmentService) applyAnswer(ctx context.Context, userID int, entry *models.QuestionHistory, userAnswer string, isCorrect bool, feedback string) (result0 *models.AnswerResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to rollback transaction", rollbackErr, map[string]interface{}{"session_id": entry.SessionID})
			}
		}
	}()

	var score int
	var level string
	err = tx.QueryRowContext(ctx,
		`SELECT score, current_level FROM assessment_sessions WHERE id = $1 FOR UPDATE`, entry.SessionID).Scan(&score, &level)
	if errors.Is(err, sql.ErrNoRows) {
		err = contextutils.ErrSessionNotFound
		return nil, err
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to lock session: %v", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE question_history
		SET user_answer = $1, is_correct = $2, feedback = $3, answered_at = NOW()
		WHERE id = $4 AND is_correct IS NULL`,
		userAnswer, isCorrect, feedback, entry.ID)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to record answer: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Answered by a concurrent submission while this one was being graded
		err = contextutils.ErrQuestionAlreadyAnswered
		return nil, err
	}

	newScore, newLevel := ApplyAnswer(score, models.Level(level), isCorrect)
	if _, err = tx.ExecContext(ctx,
		`UPDATE assessment_sessions SET score = $1, current_level = $2, updated_at = NOW() WHERE id = $3`,
		newScore, string(newLevel), entry.SessionID); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update session: %v", err)
	}

	topicScore, proficiency, err := s.applyTopicScore(ctx, tx, userID, entry.TopicID, isCorrect)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit answer: %v", err)
	}

	return &models.AnswerResult{
		Correct:          isCorrect,
		Feedback:         feedback,
		CurrentScore:     newScore,
		CurrentLevel:     newLevel,
		TopicScore:       topicScore,
		TopicProficiency: proficiency,
	}, nil
}

// applyTopicScore bumps the user's topic score on a correct answer and reports the current value either way
func (s *AssessmentService) applyTopicScore(ctx context.Context, tx *sql.Tx, userID, topicID int, isCorrect bool) (int, models.Level, error) {
	if !isCorrect {
		var score int
		var proficiency string
		err := tx.QueryRowContext(ctx,
			`SELECT score, proficiency_level FROM topic_scores WHERE user_id = $1 AND topic_id = $2`, userID, topicID).
			Scan(&score, &proficiency)
		if errors.Is(err, sql.ErrNoRows) {
			// No row yet reads as the starting 0/Beginner
			return 0, models.LevelBeginner, nil
		}
		if err != nil {
			return 0, "", contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to read topic score: %v", err)
		}
		return score, models.Level(proficiency), nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO topic_scores (user_id, topic_id, score, proficiency_level, updated_at)
		VALUES ($1, $2, 0, $3, NOW())
		ON CONFLICT (user_id, topic_id) DO NOTHING`,
		userID, topicID, string(models.LevelBeginner)); err != nil {
		return 0, "", contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create topic score: %v", err)
	}

	var score int
	var proficiency string
	if err := tx.QueryRowContext(ctx,
		`SELECT score, proficiency_level FROM topic_scores WHERE user_id = $1 AND topic_id = $2 FOR UPDATE`, userID, topicID).
		Scan(&score, &proficiency); err != nil {
		return 0, "", contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to lock topic score: %v", err)
	}

	newScore, newProficiency := ApplyTopicAnswer(score, models.Level(proficiency))
	if _, err := tx.ExecContext(ctx,
		`UPDATE topic_scores SET score = $1, proficiency_level = $2, updated_at = NOW() WHERE user_id = $3 AND topic_id = $4`,
		newScore, string(newProficiency), userID, topicID); err != nil {
		return 0, "", contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update topic score: %v", err)
	}
	return newScore, newProficiency, nil
}

// GetSessionHistory returns the session's servings in order; the session must exist
func (s *AssessmentService) GetSessionHistory(ctx context.Context, sessionID int) (result0 []models.QuestionHistory, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_session_history", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	if _, err = s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.history.GetSessionHistory(ctx, sessionID)
}

// GetUserTopicScores lists a user's per-topic scores, highest first
func (s *AssessmentService) GetUserTopicScores(ctx context.Context, userID int) (result0 []models.TopicScore, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_user_topic_scores", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.id, ts.user_id, ts.topic_id, t.name, ts.score, ts.proficiency_level, ts.updated_at
		FROM topic_scores ts
		JOIN topics t ON t.id = ts.topic_id
		WHERE ts.user_id = $1
		ORDER BY ts.score DESC, t.name`, userID)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get topic scores: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	scores := []models.TopicScore{}
	for rows.Next() {
		var ts models.TopicScore
		var proficiency string
		if err := rows.Scan(&ts.ID, &ts.UserID, &ts.TopicID, &ts.TopicName, &ts.Score, &proficiency, &ts.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan topic score")
		}
		ts.ProficiencyLevel = models.Level(proficiency)
		scores = append(scores, ts)
	}
	return scores, rows.Err()
}
