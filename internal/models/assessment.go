package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// QuestionSource records where a served question came from
type QuestionSource string

const (
	SourceBank      QuestionSource = "bank"
	SourceGenerated QuestionSource = "generated"
)

// AssessmentSession is one adaptive quiz run. Score and level only ever increase.
type AssessmentSession struct {
	ID           int       `json:"session_id"`
	UserID       int       `json:"user_id"`
	ProjectID    *int      `json:"project_id"`
	TopicID      *int      `json:"topic_id"`
	CurrentLevel Level     `json:"current_level"`
	Score        int       `json:"score"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BankQuestion is a validated multiple-choice question stored for reuse.
// CorrectAnswer is always one of the four Choices.
type BankQuestion struct {
	ID            int       `json:"id"`
	TopicID       int       `json:"topic_id"`
	Difficulty    Level     `json:"difficulty"`
	QuestionText  string    `json:"question_text"`
	Choices       []string  `json:"choices"`
	CorrectAnswer string    `json:"correct_answer"`
	SourceJobID   *int      `json:"source_job_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// GeneratedQuestion is the JSON shape the language model is asked to produce
type GeneratedQuestion struct {
	QuestionText  string   `json:"question_text"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
}

// QuestionHistory is one serving of a question within a session.
// IsCorrect is NULL while the serving is pending and is set exactly once.
type QuestionHistory struct {
	ID            int
	SessionID     int
	ServingSeq    int
	TopicID       int
	QuestionText  string
	Choices       []string
	CorrectAnswer string
	Source        QuestionSource
	UserAnswer    sql.NullString
	IsCorrect     sql.NullBool
	Feedback      sql.NullString
	ServedAt      time.Time
	AnsweredAt    sql.NullTime
}

// IsPending reports whether the serving still awaits an answer
func (h *QuestionHistory) IsPending() bool {
	return !h.IsCorrect.Valid
}

// MarshalJSON hides the correct answer until the question has been answered
func (h QuestionHistory) MarshalJSON() (result0 []byte, err error) {
	out := struct {
		ID            int            `json:"history_id"`
		SessionID     int            `json:"session_id"`
		ServingSeq    int            `json:"serving_seq"`
		TopicID       int            `json:"topic_id"`
		QuestionText  string         `json:"question_text"`
		Choices       []string       `json:"options"`
		CorrectAnswer *string        `json:"correct_answer,omitempty"`
		Source        QuestionSource `json:"source"`
		UserAnswer    *string        `json:"user_answer"`
		IsCorrect     *bool          `json:"is_correct"`
		Feedback      *string        `json:"feedback"`
		ServedAt      time.Time      `json:"served_at"`
		AnsweredAt    *time.Time     `json:"answered_at"`
	}{
		ID:           h.ID,
		SessionID:    h.SessionID,
		ServingSeq:   h.ServingSeq,
		TopicID:      h.TopicID,
		QuestionText: h.QuestionText,
		Choices:      h.Choices,
		Source:       h.Source,
		UserAnswer:   nullStringToPointer(h.UserAnswer),
		Feedback:     nullStringToPointer(h.Feedback),
		ServedAt:     h.ServedAt,
		AnsweredAt:   nullTimeToPointer(h.AnsweredAt),
	}
	if h.IsCorrect.Valid {
		correct := h.IsCorrect.Bool
		out.IsCorrect = &correct
		answer := h.CorrectAnswer
		out.CorrectAnswer = &answer
	}
	return json.Marshal(out)
}

// ServedQuestion is what a learner receives when asking for the next question.
// The correct answer is deliberately absent.
type ServedQuestion struct {
	SessionID  int            `json:"session_id"`
	HistoryID  int            `json:"history_id"`
	ServingSeq int            `json:"serving_seq"`
	Level      Level          `json:"level"`
	TopicID    int            `json:"topic_id"`
	Topic      string         `json:"topic"`
	Question   string         `json:"question"`
	Options    []string       `json:"options"`
	Source     QuestionSource `json:"source"`
}

// SubmitAnswerRequest identifies a served question by HistoryID, or failing that by its text
type SubmitAnswerRequest struct {
	SessionID    int    `json:"session_id" binding:"required,gt=0"`
	HistoryID    *int   `json:"history_id,omitempty"`
	QuestionText string `json:"question_text"`
	UserAnswer   string `json:"user_answer"`
}

// AnswerResult is returned after an answer is graded
type AnswerResult struct {
	Correct          bool   `json:"correct"`
	Feedback         string `json:"feedback"`
	CurrentScore     int    `json:"current_score"`
	CurrentLevel     Level  `json:"current_level"`
	TopicScore       int    `json:"topic_score"`
	TopicProficiency Level  `json:"topic_proficiency,omitempty"`
}
