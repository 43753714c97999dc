package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/models"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory stand-in for the topic, bank and history tables
type memoryStore struct {
	mu       sync.Mutex
	topics   []models.Topic
	bank     []models.BankQuestion
	history  []models.QuestionHistory
	nextID   int
	topicErr error
}

func (m *memoryStore) GetTopic(_ context.Context, id int) (*models.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.topics {
		if t.ID == id {
			topic := t
			return &topic, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) RandomTopic(_ context.Context, projectID *int) (*models.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topicErr != nil {
		return nil, m.topicErr
	}
	for _, t := range m.topics {
		if projectID == nil || (t.ProjectID != nil && *t.ProjectID == *projectID) {
			topic := t
			return &topic, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) RandomUnaskedQuestion(_ context.Context, sessionID, topicID int, level models.Level) (*models.BankQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.bank {
		if q.TopicID != topicID || q.Difficulty != level {
			continue
		}
		asked := false
		for _, h := range m.history {
			if h.SessionID == sessionID && h.QuestionText == q.QuestionText {
				asked = true
				break
			}
		}
		if !asked {
			question := q
			return &question, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) RecordServedQuestion(_ context.Context, entry *models.QuestionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	seq := 1
	for _, h := range m.history {
		if h.SessionID == entry.SessionID && h.ServingSeq >= seq {
			seq = h.ServingSeq + 1
		}
	}
	entry.ID = m.nextID
	entry.ServingSeq = seq
	entry.ServedAt = time.Now()
	m.history = append(m.history, *entry)
	return nil
}

type fakeRetrieval struct {
	text string
	err  error
}

func (f *fakeRetrieval) ContextFor(context.Context, string, *int) (string, error) {
	return f.text, f.err
}

func intPtr(v int) *int { return &v }

func bankQuestion(id, topicID int, level models.Level, text string) models.BankQuestion {
	return models.BankQuestion{
		ID:            id,
		TopicID:       topicID,
		Difficulty:    level,
		QuestionText:  text,
		Choices:       []string{"a", "b", "c", "d"},
		CorrectAnswer: "a",
	}
}

func newTestSelector(store *memoryStore, retrieval RetrievalContextProvider, ai AIServiceInterface) *QuestionSelector {
	return NewQuestionSelector(store, store, store, retrieval, ai, testLogger())
}

func TestQuestionSelector_ServesBankQuestionsWithoutRepeats(t *testing.T) {
	store := &memoryStore{
		topics: []models.Topic{{ID: 1, Name: "Discovery"}},
		bank: []models.BankQuestion{
			bankQuestion(1, 1, models.LevelBeginner, "Q1"),
			bankQuestion(2, 1, models.LevelBeginner, "Q2"),
			bankQuestion(3, 1, models.LevelIntermediate, "Q3"),
		},
	}
	ai := &mockAIService{}
	selector := newTestSelector(store, nil, ai)
	session := &models.AssessmentSession{ID: 7, CurrentLevel: models.LevelBeginner}

	first, err := selector.Next(context.Background(), session)
	require.NoError(t, err)
	second, err := selector.Next(context.Background(), session)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Q1", "Q2"}, []string{first.Question, second.Question})
	assert.Equal(t, models.SourceBank, first.Source)
	assert.Equal(t, 1, first.ServingSeq)
	assert.Equal(t, 2, second.ServingSeq)
	assert.Equal(t, "Discovery", first.Topic)
	assert.Equal(t, models.LevelBeginner, first.Level)
	assert.Len(t, store.history, 2)
	for _, h := range store.history {
		assert.True(t, h.IsPending())
	}
	ai.AssertNotCalled(t, "GenerateQuestion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQuestionSelector_GeneratesWhenBankExhausted(t *testing.T) {
	projectID := intPtr(3)
	store := &memoryStore{
		topics: []models.Topic{{ID: 1, ProjectID: projectID, Name: "Pricing"}},
		bank:   []models.BankQuestion{bankQuestion(1, 1, models.LevelAdvanced, "Asked already")},
		history: []models.QuestionHistory{
			{ID: 1, SessionID: 9, ServingSeq: 1, TopicID: 1, QuestionText: "Asked already"},
		},
		nextID: 1,
	}
	generated := &models.GeneratedQuestion{
		QuestionText:  "Which discount needs approval?",
		Choices:       []string{"5%", "10%", "15%", "25%"},
		CorrectAnswer: "25%",
	}
	ai := &mockAIService{}
	ai.On("GenerateQuestion", mock.Anything, "Pricing", models.LevelAdvanced, "discount policy excerpt").Return(generated, nil)

	selector := newTestSelector(store, &fakeRetrieval{text: "discount policy excerpt"}, ai)
	session := &models.AssessmentSession{ID: 9, ProjectID: projectID, CurrentLevel: models.LevelAdvanced}

	served, err := selector.Next(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, models.SourceGenerated, served.Source)
	assert.Equal(t, generated.QuestionText, served.Question)
	assert.Equal(t, generated.Choices, served.Options)
	assert.Equal(t, 2, served.ServingSeq)
	assert.Equal(t, "25%", store.history[1].CorrectAnswer)
	ai.AssertExpectations(t)
}

func TestQuestionSelector_RetrievalFailureStillGenerates(t *testing.T) {
	store := &memoryStore{topics: []models.Topic{{ID: 1, Name: "Closing"}}}
	ai := &mockAIService{}
	ai.On("GenerateQuestion", mock.Anything, "Closing", models.LevelBeginner, "").Return(&models.GeneratedQuestion{
		QuestionText: "Q", Choices: []string{"a", "b", "c", "d"}, CorrectAnswer: "c",
	}, nil)

	selector := newTestSelector(store, &fakeRetrieval{err: errors.New("index offline")}, ai)
	served, err := selector.Next(context.Background(), &models.AssessmentSession{ID: 1, CurrentLevel: models.LevelBeginner})
	require.NoError(t, err)
	assert.Equal(t, "Q", served.Question)
}

func TestQuestionSelector_GenerationFailureRecordsNothing(t *testing.T) {
	store := &memoryStore{topics: []models.Topic{{ID: 1, Name: "Closing"}}}
	ai := &mockAIService{}
	genErr := &QuestionGenerationError{Raw: "not json", Reason: "invalid character"}
	ai.On("GenerateQuestion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, genErr)

	selector := newTestSelector(store, nil, ai)
	_, err := selector.Next(context.Background(), &models.AssessmentSession{ID: 1, CurrentLevel: models.LevelBeginner})

	var got *QuestionGenerationError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "not json", got.Raw)
	assert.Empty(t, store.history)
	ai.AssertNumberOfCalls(t, "GenerateQuestion", 1)
}

func TestQuestionSelector_TopicResolution(t *testing.T) {
	tests := []struct {
		name    string
		store   *memoryStore
		session *models.AssessmentSession
		wantErr *contextutils.AppError
		topic   string
	}{
		{
			name:    "no topics at all",
			store:   &memoryStore{},
			session: &models.AssessmentSession{ID: 1, CurrentLevel: models.LevelBeginner},
			wantErr: contextutils.ErrNoTopics,
		},
		{
			name:    "project has no topics",
			store:   &memoryStore{topics: []models.Topic{{ID: 1, ProjectID: intPtr(1), Name: "A"}}},
			session: &models.AssessmentSession{ID: 1, ProjectID: intPtr(2), CurrentLevel: models.LevelBeginner},
			wantErr: contextutils.ErrNoTopics,
		},
		{
			name:    "pinned topic missing",
			store:   &memoryStore{topics: []models.Topic{{ID: 1, Name: "A"}}},
			session: &models.AssessmentSession{ID: 1, TopicID: intPtr(99), CurrentLevel: models.LevelBeginner},
			wantErr: contextutils.ErrTopicNotFound,
		},
		{
			name: "pinned topic wins over project scope",
			store: &memoryStore{
				topics: []models.Topic{{ID: 1, ProjectID: intPtr(1), Name: "A"}, {ID: 2, ProjectID: intPtr(1), Name: "B"}},
				bank:   []models.BankQuestion{bankQuestion(1, 2, models.LevelBeginner, "B question")},
			},
			session: &models.AssessmentSession{ID: 1, ProjectID: intPtr(1), TopicID: intPtr(2), CurrentLevel: models.LevelBeginner},
			topic:   "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector := newTestSelector(tt.store, nil, &mockAIService{})
			served, err := selector.Next(context.Background(), tt.session)
			if tt.wantErr != nil {
				assert.True(t, contextutils.IsError(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, served.Topic)
		})
	}
}

func TestQuestionSelector_TopicLookupError(t *testing.T) {
	store := &memoryStore{topicErr: contextutils.ErrDatabaseQuery}
	selector := newTestSelector(store, nil, &mockAIService{})
	_, err := selector.Next(context.Background(), &models.AssessmentSession{ID: 1, CurrentLevel: models.LevelBeginner})
	assert.True(t, contextutils.IsError(err, contextutils.ErrDatabaseQuery))
}
