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

// HistoryServiceInterface records servings and looks them up for grading
type HistoryServiceInterface interface {
	RecordServedQuestion(ctx context.Context, entry *models.QuestionHistory) error
	GetSessionHistory(ctx context.Context, sessionID int) ([]models.QuestionHistory, error)
	GetHistoryEntry(ctx context.Context, sessionID, historyID int) (*models.QuestionHistory, error)
	FindLatestByText(ctx context.Context, sessionID int, questionText string) (*models.QuestionHistory, error)
}

// HistoryService owns the question_history table
type HistoryService struct {
	db     *sql.DB
	logger *observability.Logger
}

const historySelectFields = `id, session_id, serving_seq, topic_id, question_text, choices, correct_answer, source,
	user_answer, is_correct, feedback, served_at, answered_at`

// NewHistoryService creates a new HistoryService
func NewHistoryService(db *sql.DB, logger *observability.Logger) *HistoryService {
	return &HistoryService{db: db, logger: logger}
}

func scanHistory(row rowScanner) (result0 *models.QuestionHistory, err error) {
	var h models.QuestionHistory
	var choices []byte
	var source string
	if err = row.Scan(&h.ID, &h.SessionID, &h.ServingSeq, &h.TopicID, &h.QuestionText, &choices, &h.CorrectAnswer, &source,
		&h.UserAnswer, &h.IsCorrect, &h.Feedback, &h.ServedAt, &h.AnsweredAt); err != nil {
		return nil, err
	}
	if err = json.Unmarshal(choices, &h.Choices); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "invalid choices for history %d: %v", h.ID, err)
	}
	h.Source = models.QuestionSource(source)
	return &h, nil
}

// RecordServedQuestion appends a pending entry to the session. The session row is locked so that
// concurrent servings receive distinct, increasing serving_seq values. ID, ServingSeq and ServedAt are
// filled in on success.
func (s *HistoryService) RecordServedQuestion(ctx context.Context, entry *models.QuestionHistory) (err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "record_served_question",
		observability.AttributeSessionID(entry.SessionID),
		observability.AttributeTopicID(entry.TopicID),
		attribute.String("question.source", string(entry.Source)),
	)
	defer observability.FinishSpan(span, &err)

	choices, err := json.Marshal(entry.Choices)
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal choices")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to rollback transaction", rollbackErr, map[string]interface{}{"session_id": entry.SessionID})
			}
		}
	}()

	var locked int
	err = tx.QueryRowContext(ctx, `SELECT id FROM assessment_sessions WHERE id = $1 FOR UPDATE`, entry.SessionID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		err = contextutils.ErrSessionNotFound
		return err
	}
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to lock session: %v", err)
	}

	var seq int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(serving_seq), 0) + 1 FROM question_history WHERE session_id = $1`, entry.SessionID).Scan(&seq); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to compute serving sequence: %v", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO question_history (session_id, serving_seq, topic_id, question_text, choices, correct_answer, source, served_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, served_at`,
		entry.SessionID, seq, entry.TopicID, entry.QuestionText, string(choices), entry.CorrectAnswer, string(entry.Source),
	).Scan(&entry.ID, &entry.ServedAt)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to record served question: %v", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE assessment_sessions SET updated_at = NOW() WHERE id = $1`, entry.SessionID); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to touch session: %v", err)
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit served question: %v", err)
	}

	entry.ServingSeq = seq
	entry.UserAnswer = sql.NullString{}
	entry.IsCorrect = sql.NullBool{}
	entry.Feedback = sql.NullString{}
	entry.AnsweredAt = sql.NullTime{}
	span.SetAttributes(attribute.Int("history.serving_seq", seq))
	return nil
}

// GetSessionHistory returns every serving of the session in serving order
func (s *HistoryService) GetSessionHistory(ctx context.Context, sessionID int) (result0 []models.QuestionHistory, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_session_history", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historySelectFields+` FROM question_history WHERE session_id = $1 ORDER BY serving_seq`, sessionID)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get session history: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	history := []models.QuestionHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan history")
		}
		history = append(history, *h)
	}
	return history, rows.Err()
}

// GetHistoryEntry returns the entry with historyID if it belongs to the session, nil otherwise
func (s *HistoryService) GetHistoryEntry(ctx context.Context, sessionID, historyID int) (result0 *models.QuestionHistory, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_history_entry",
		observability.AttributeSessionID(sessionID),
		attribute.Int("history.id", historyID),
	)
	defer observability.FinishSpan(span, &err)

	h, err := scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historySelectFields+` FROM question_history WHERE id = $1 AND session_id = $2`, historyID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get history entry: %v", err)
	}
	return h, nil
}

// FindLatestByText looks up a served entry of the session by exact text. It is not a strict
// most-recent match: the newest unanswered entry is returned ahead of any answered one, even a
// later one, so a repeated text cannot shadow an open question. Without a pending entry the
// most recently served one is returned.
func (s *HistoryService) FindLatestByText(ctx context.Context, sessionID int, questionText string) (result0 *models.QuestionHistory, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "find_history_by_text", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	h, err := scanHistory(s.db.QueryRowContext(ctx, `
		SELECT `+historySelectFields+`
		FROM question_history
		WHERE session_id = $1 AND question_text = $2
		ORDER BY (is_correct IS NULL) DESC, serving_seq DESC
		LIMIT 1`, sessionID, questionText))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to find history entry: %v", err)
	}
	return h, nil
}
