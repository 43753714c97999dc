package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// QuestionBankServiceInterface defines access to pre-generated questions
type QuestionBankServiceInterface interface {
	InsertQuestions(ctx context.Context, topicID int, level models.Level, questions []models.GeneratedQuestion, sourceJobID *int) (int, error)
	RandomUnaskedQuestion(ctx context.Context, sessionID, topicID int, level models.Level) (*models.BankQuestion, error)
	ListQuestions(ctx context.Context, topicID int) ([]models.BankQuestion, error)
}

// QuestionBankService stores validated questions by topic and difficulty. Rows are never updated.
type QuestionBankService struct {
	db     *sql.DB
	logger *observability.Logger
}

const bankSelectFields = `qb.id, qb.topic_id, qb.difficulty, qb.question_text, qb.choices, qb.correct_answer, qb.source_job_id, qb.created_at`

// NewQuestionBankService creates a new QuestionBankService
func NewQuestionBankService(db *sql.DB, logger *observability.Logger) *QuestionBankService {
	return &QuestionBankService{db: db, logger: logger}
}

func scanBankQuestion(row rowScanner) (result0 *models.BankQuestion, err error) {
	var q models.BankQuestion
	var choices []byte
	var sourceJobID sql.NullInt64
	if err = row.Scan(&q.ID, &q.TopicID, &q.Difficulty, &q.QuestionText, &choices, &q.CorrectAnswer, &sourceJobID, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err = json.Unmarshal(choices, &q.Choices); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "invalid choices for question %d: %v", q.ID, err)
	}
	q.SourceJobID = nullInt64ToIntPointer(sourceJobID)
	return &q, nil
}

// InsertQuestions stores one (topic, level) batch in a single transaction. Questions whose text already
// exists for the same topic and level are skipped. Returns the number of rows inserted.
func (s *QuestionBankService) InsertQuestions(ctx context.Context, topicID int, level models.Level, questions []models.GeneratedQuestion, sourceJobID *int) (result0 int, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "insert_questions",
		observability.AttributeTopicID(topicID),
		observability.AttributeLevel(string(level)),
		attribute.Int("questions.count", len(questions)),
	)
	defer observability.FinishSpan(span, &err)

	if !level.IsValid() {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid difficulty %q", level)
	}
	if len(questions) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to rollback transaction", rollbackErr, map[string]interface{}{"topic_id": topicID})
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question_bank (topic_id, difficulty, question_text, choices, correct_answer, source_job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (topic_id, difficulty, question_text) DO NOTHING`)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to prepare question insert")
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close statement", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	inserted := 0
	for _, q := range questions {
		if len(q.Choices) != 4 || !containsString(q.Choices, q.CorrectAnswer) {
			return 0, contextutils.WrapErrorf(contextutils.ErrValidationFailed, "question %q does not have 4 choices including the answer", q.QuestionText)
		}
		choices, marshalErr := json.Marshal(q.Choices)
		if marshalErr != nil {
			err = contextutils.WrapError(marshalErr, "failed to marshal choices")
			return 0, err
		}
		result, execErr := stmt.ExecContext(ctx, topicID, string(level), q.QuestionText, string(choices), q.CorrectAnswer, intPointerArg(sourceJobID))
		if execErr != nil {
			err = contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to insert question: %v", execErr)
			return 0, err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit questions: %v", err)
	}

	span.SetAttributes(attribute.Int("questions.inserted", inserted))
	return inserted, nil
}

// RandomUnaskedQuestion picks uniformly among the bank questions for (topic, level) whose text has not
// been served in the session yet. Returns nil when none remain.
func (s *QuestionBankService) RandomUnaskedQuestion(ctx context.Context, sessionID, topicID int, level models.Level) (result0 *models.BankQuestion, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "random_unasked_question",
		observability.AttributeSessionID(sessionID),
		observability.AttributeTopicID(topicID),
		observability.AttributeLevel(string(level)),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT ` + bankSelectFields + `
		FROM question_bank qb
		WHERE qb.topic_id = $1 AND qb.difficulty = $2
		  AND NOT EXISTS (
			SELECT 1 FROM question_history h
			WHERE h.session_id = $3 AND h.question_text = qb.question_text
		  )
		ORDER BY random()
		LIMIT 1`

	q, err := scanBankQuestion(s.db.QueryRowContext(ctx, query, topicID, string(level), sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("bank.exhausted", true))
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to pick bank question: %v", err)
	}
	return q, nil
}

// ListQuestions lists the bank for one topic ordered by difficulty
func (s *QuestionBankService) ListQuestions(ctx context.Context, topicID int) (result0 []models.BankQuestion, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "list_bank_questions", observability.AttributeTopicID(topicID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bankSelectFields+`
		FROM question_bank qb
		WHERE qb.topic_id = $1
		ORDER BY CASE qb.difficulty WHEN 'Beginner' THEN 1 WHEN 'Intermediate' THEN 2 ELSE 3 END, qb.id`, topicID)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list bank questions: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	questions := []models.BankQuestion{}
	for rows.Next() {
		q, err := scanBankQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}
