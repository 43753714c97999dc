package services

import (
	"context"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// TopicPicker resolves the topic for the next question
type TopicPicker interface {
	GetTopic(ctx context.Context, id int) (*models.Topic, error)
	RandomTopic(ctx context.Context, projectID *int) (*models.Topic, error)
}

// BankQuestionPicker draws stored questions not yet asked in a session
type BankQuestionPicker interface {
	RandomUnaskedQuestion(ctx context.Context, sessionID, topicID int, level models.Level) (*models.BankQuestion, error)
}

// ServedQuestionRecorder appends a pending serving to the session history
type ServedQuestionRecorder interface {
	RecordServedQuestion(ctx context.Context, entry *models.QuestionHistory) error
}

// RetrievalContextProvider supplies knowledge base excerpts for on-demand generation
type RetrievalContextProvider interface {
	ContextFor(ctx context.Context, query string, projectID *int) (string, error)
}

// QuestionSelectorInterface picks and records the next question of a session
type QuestionSelectorInterface interface {
	Next(ctx context.Context, session *models.AssessmentSession) (*models.ServedQuestion, error)
}

// QuestionSelector prefers unasked bank questions and falls back to generating one
type QuestionSelector struct {
	topics    TopicPicker
	bank      BankQuestionPicker
	history   ServedQuestionRecorder
	retrieval RetrievalContextProvider
	ai        AIServiceInterface
	logger    *observability.Logger
}

// NewQuestionSelector creates a new QuestionSelector. retrieval may be nil.
func NewQuestionSelector(topics TopicPicker, bank BankQuestionPicker, history ServedQuestionRecorder, retrieval RetrievalContextProvider, ai AIServiceInterface, logger *observability.Logger) *QuestionSelector {
	return &QuestionSelector{
		topics:    topics,
		bank:      bank,
		history:   history,
		retrieval: retrieval,
		ai:        ai,
		logger:    logger,
	}
}

// Next returns the next question for the session at its current level. The serving is recorded
// as pending before it is returned.
func (s *QuestionSelector) Next(ctx context.Context, session *models.AssessmentSession) (result0 *models.ServedQuestion, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "select_next_question",
		observability.AttributeSessionID(session.ID),
		observability.AttributeLevel(string(session.CurrentLevel)),
		observability.AttributeProjectID(session.ProjectID),
	)
	defer observability.FinishSpan(span, &err)

	topic, err := s.resolveTopic(ctx, session)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttributeTopicID(topic.ID))

	entry, err := s.resolveQuestion(ctx, session, topic)
	if err != nil {
		return nil, err
	}

	if err := s.history.RecordServedQuestion(ctx, entry); err != nil {
		return nil, err
	}

	observability.RecordQuestionServed(ctx, string(entry.Source), string(session.CurrentLevel))
	span.SetAttributes(
		attribute.String("question.source", string(entry.Source)),
		attribute.Int("history.id", entry.ID),
	)

	return &models.ServedQuestion{
		SessionID:  session.ID,
		HistoryID:  entry.ID,
		ServingSeq: entry.ServingSeq,
		Level:      session.CurrentLevel,
		TopicID:    topic.ID,
		Topic:      topic.Name,
		Question:   entry.QuestionText,
		Options:    entry.Choices,
		Source:     entry.Source,
	}, nil
}

func (s *QuestionSelector) resolveTopic(ctx context.Context, session *models.AssessmentSession) (*models.Topic, error) {
	if session.TopicID != nil {
		topic, err := s.topics.GetTopic(ctx, *session.TopicID)
		if err != nil {
			return nil, err
		}
		if topic == nil {
			return nil, contextutils.ErrTopicNotFound
		}
		return topic, nil
	}

	topic, err := s.topics.RandomTopic(ctx, session.ProjectID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, contextutils.ErrNoTopics
	}
	return topic, nil
}

func (s *QuestionSelector) resolveQuestion(ctx context.Context, session *models.AssessmentSession, topic *models.Topic) (*models.QuestionHistory, error) {
	stored, err := s.bank.RandomUnaskedQuestion(ctx, session.ID, topic.ID, session.CurrentLevel)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return &models.QuestionHistory{
			SessionID:     session.ID,
			TopicID:       topic.ID,
			QuestionText:  stored.QuestionText,
			Choices:       stored.Choices,
			CorrectAnswer: stored.CorrectAnswer,
			Source:        models.SourceBank,
		}, nil
	}

	s.logger.Info(ctx, "Question bank exhausted, generating on demand", map[string]interface{}{
		"session_id": session.ID,
		"topic_id":   topic.ID,
		"level":      string(session.CurrentLevel),
	})

	contextText := ""
	if s.retrieval != nil {
		contextText, err = s.retrieval.ContextFor(ctx, topic.Name, session.ProjectID)
		if err != nil {
			s.logger.Warn(ctx, "Knowledge base context unavailable, generating without it", map[string]interface{}{
				"topic_id": topic.ID,
				"error":    err.Error(),
			})
			contextText = ""
		}
	}

	generated, err := s.ai.GenerateQuestion(ctx, topic.Name, session.CurrentLevel, contextText)
	if err != nil {
		return nil, err
	}

	return &models.QuestionHistory{
		SessionID:     session.ID,
		TopicID:       topic.ID,
		QuestionText:  generated.QuestionText,
		Choices:       generated.Choices,
		CorrectAnswer: generated.CorrectAnswer,
		Source:        models.SourceGenerated,
	}, nil
}
