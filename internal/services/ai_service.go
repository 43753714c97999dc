// Package services provides business logic services for the sales training application.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services/llm"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// SingleQuestionSchema is the structure every generated question must satisfy
const SingleQuestionSchema = `{
	"type": "object",
	"properties": {
		"question_text": {"type": "string", "minLength": 1},
		"choices": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 4, "maxItems": 4},
		"correct_answer": {"type": "string", "minLength": 1}
	},
	"required": ["question_text", "choices", "correct_answer"]
}`

// BatchQuestionsSchema wraps SingleQuestionSchema in an array of exactly count items
func BatchQuestionsSchema(count int) string {
	return fmt.Sprintf(`{"type":"array","minItems":%d,"maxItems":%d,"items":%s}`, count, count, SingleQuestionSchema)
}

// AI operation names, used for metrics and concurrency stats
const (
	OpExtractTopics     = "extract_topics"
	OpGenerateQuestions = "generate_questions"
	OpGenerateQuestion  = "generate_question"
	OpCheckEquivalence  = "check_equivalence"
	OpExplainAnswer     = "explain_answer"
)

// AIServiceInterface defines the language model operations used by ingestion and assessment
type AIServiceInterface interface {
	ExtractTopics(ctx context.Context, documentText, focus string) ([]string, error)
	GenerateQuestionSet(ctx context.Context, topic string, level models.Level, count int, contextText string) ([]models.GeneratedQuestion, error)
	GenerateQuestion(ctx context.Context, topic string, level models.Level, contextText string) (*models.GeneratedQuestion, error)
	CheckEquivalence(ctx context.Context, questionText, correctAnswer, userAnswer string) (bool, error)
	ExplainAnswer(ctx context.Context, questionText, userAnswer, correctAnswer string) (string, error)
	GetConcurrencyStats() ConcurrencyStats
	Shutdown(ctx context.Context) error
}

// ConcurrencyStats provides metrics about AI request concurrency
type ConcurrencyStats struct {
	Provider             string         `json:"provider"`
	ActiveRequests       int            `json:"active_requests"`
	MaxConcurrent        int            `json:"max_concurrent"`
	QueuedRequests       int            `json:"queued_requests"`
	TotalRequests        int64          `json:"total_requests"`
	OperationActiveCount map[string]int `json:"operation_active_count"`
}

// QuestionGenerationError is returned when the model's reply cannot be turned into a valid question.
// Raw carries the unparsed reply for diagnostics.
type QuestionGenerationError struct {
	Raw    string
	Reason string
}

func (e *QuestionGenerationError) Error() string {
	return fmt.Sprintf("Failed to generate valid JSON question: %s", e.Reason)
}

// Unwrap allows errors.Is(..., contextutils.ErrAIResponseInvalid) to work.
func (e *QuestionGenerationError) Unwrap() error {
	return contextutils.ErrAIResponseInvalid
}

// AIService renders prompts, sends them to the configured provider and validates what comes back
type AIService struct {
	provider llm.Provider
	cfg      *config.Config

	templateManager *AITemplateManager

	// Concurrency control
	globalSemaphore chan struct{}
	maxConcurrent   int

	operationCount map[string]int
	concurrencyMu  sync.RWMutex

	// Metrics
	totalRequests  int64
	activeRequests int
	queuedRequests int
	statsMu        sync.RWMutex

	logger *observability.Logger

	// Shutdown control
	shutdownCtx context.Context
	shutdownMu  sync.RWMutex
}

// NewAIService creates a new AI service instance around provider
func NewAIService(cfg *config.Config, provider llm.Provider, logger *observability.Logger) (result0 *AIService, err error) {
	templateManager, err := NewAITemplateManager()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load prompt templates: %w", err)
	}

	maxConcurrent := cfg.AI.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultAIMaxConcurrent
	}

	return &AIService{
		provider:        provider,
		cfg:             cfg,
		templateManager: templateManager,
		globalSemaphore: make(chan struct{}, maxConcurrent),
		maxConcurrent:   maxConcurrent,
		operationCount:  make(map[string]int),
		shutdownCtx:     context.Background(),
		logger:          logger,
	}, nil
}

// ExtractTopics asks for a comma separated topic list covering documentText
func (s *AIService) ExtractTopics(ctx context.Context, documentText, focus string) (result0 []string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "extract_topics",
		attribute.Int("document.length", len(documentText)),
		attribute.Bool("focus.enabled", focus != ""),
	)
	defer observability.FinishSpan(span, &err)

	if limit := s.cfg.Assessment.TopicExcerptChars; limit > 0 && len(documentText) > limit {
		documentText = truncateRunes(documentText, limit)
	}

	prompt, err := s.templateManager.RenderTemplate(TopicExtractionPromptTemplate, AITemplateData{
		DocumentText: documentText,
		Focus:        strings.TrimSpace(focus),
	})
	if err != nil {
		return nil, err
	}

	response, err := s.complete(ctx, OpExtractTopics, prompt)
	if err != nil {
		return nil, err
	}

	topics := ParseTopicList(response)
	span.SetAttributes(attribute.Int("topics.count", len(topics)))
	return topics, nil
}

// GenerateQuestionSet asks for count questions on topic at level and validates every one of them.
// Any invalid question rejects the whole set.
func (s *AIService) GenerateQuestionSet(ctx context.Context, topic string, level models.Level, count int, contextText string) (result0 []models.GeneratedQuestion, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_question_set",
		attribute.String("topic", topic),
		observability.AttributeLevel(string(level)),
		attribute.Int("count", count),
	)
	defer observability.FinishSpan(span, &err)

	if count <= 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "question count must be positive")
	}

	schema := BatchQuestionsSchema(count)
	prompt, err := s.templateManager.RenderTemplate(QuestionSetPromptTemplate, AITemplateData{
		Topic:           topic,
		Level:           string(level),
		Count:           count,
		Context:         contextText,
		SchemaForPrompt: schema,
	})
	if err != nil {
		return nil, err
	}

	response, err := s.complete(ctx, OpGenerateQuestions, prompt)
	if err != nil {
		return nil, err
	}

	cleaned := cleanJSONResponse(response)
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "question set is not a JSON array: %v", err)
	}
	if len(raw) != count {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "expected %d questions, got %d", count, len(raw))
	}

	questions := make([]models.GeneratedQuestion, 0, len(raw))
	for i, item := range raw {
		q, err := s.parseQuestion(ctx, item)
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "question %d invalid", i+1)
		}
		questions = append(questions, *q)
	}

	return questions, nil
}

// GenerateQuestion asks for a single question. Malformed output yields a *QuestionGenerationError.
func (s *AIService) GenerateQuestion(ctx context.Context, topic string, level models.Level, contextText string) (result0 *models.GeneratedQuestion, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_question",
		attribute.String("topic", topic),
		observability.AttributeLevel(string(level)),
		attribute.Bool("context.enabled", contextText != ""),
	)
	defer observability.FinishSpan(span, &err)

	prompt, err := s.templateManager.RenderTemplate(QuestionPromptTemplate, AITemplateData{
		Topic:   topic,
		Level:   string(level),
		Context: contextText,
	})
	if err != nil {
		return nil, err
	}

	response, err := s.complete(ctx, OpGenerateQuestion, prompt)
	if err != nil {
		return nil, err
	}

	q, err := s.parseQuestion(ctx, []byte(cleanJSONResponse(response)))
	if err != nil {
		return nil, &QuestionGenerationError{Raw: response, Reason: err.Error()}
	}
	return q, nil
}

// CheckEquivalence asks whether userAnswer means the same as correctAnswer.
// Only a trimmed, case-insensitive "YES" counts.
func (s *AIService) CheckEquivalence(ctx context.Context, questionText, correctAnswer, userAnswer string) (result0 bool, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "check_equivalence")
	defer observability.FinishSpan(span, &err)

	prompt, err := s.templateManager.RenderTemplate(EquivalencePromptTemplate, AITemplateData{
		QuestionText:  questionText,
		CorrectAnswer: correctAnswer,
		UserAnswer:    userAnswer,
	})
	if err != nil {
		return false, err
	}

	response, err := s.complete(ctx, OpCheckEquivalence, prompt)
	if err != nil {
		return false, err
	}

	equivalent := strings.ToUpper(strings.TrimSpace(response)) == "YES"
	span.SetAttributes(attribute.Bool("equivalent", equivalent))
	return equivalent, nil
}

// ExplainAnswer asks for a short explanation of why userAnswer is wrong
func (s *AIService) ExplainAnswer(ctx context.Context, questionText, userAnswer, correctAnswer string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "explain_answer")
	defer observability.FinishSpan(span, &err)

	prompt, err := s.templateManager.RenderTemplate(ExplanationPromptTemplate, AITemplateData{
		QuestionText:  questionText,
		CorrectAnswer: correctAnswer,
		UserAnswer:    userAnswer,
	})
	if err != nil {
		return "", err
	}

	return s.complete(ctx, OpExplainAnswer, prompt)
}

// parseQuestion unmarshals one question, validates it against SingleQuestionSchema and checks the
// correct answer is one of the choices
func (s *AIService) parseQuestion(ctx context.Context, data []byte) (result0 *models.GeneratedQuestion, err error) {
	if err := s.ValidateQuestionSchema(ctx, data); err != nil {
		return nil, err
	}

	var q models.GeneratedQuestion
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse question: %v", err)
	}
	q.QuestionText = strings.TrimSpace(q.QuestionText)
	for i := range q.Choices {
		q.Choices[i] = strings.TrimSpace(q.Choices[i])
	}
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)

	if !containsString(q.Choices, q.CorrectAnswer) {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "correct answer %q is not one of the choices", q.CorrectAnswer)
	}
	return &q, nil
}

// ValidateQuestionSchema validates a single question document against SingleQuestionSchema
func (s *AIService) ValidateQuestionSchema(ctx context.Context, data []byte) (err error) {
	_, span := observability.TraceAIFunction(ctx, "validate_question_schema")
	defer observability.FinishSpan(span, &err)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(SingleQuestionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		span.SetAttributes(attribute.String("validation.result", "validate_error"))
		return contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "question is not valid JSON: %v", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, e := range result.Errors() {
			errorMessages = append(errorMessages, e.String())
		}
		span.SetAttributes(attribute.String("validation.result", "invalid"))
		return contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "question failed schema validation: %s", strings.Join(errorMessages, "; "))
	}

	span.SetAttributes(attribute.String("validation.result", "valid"))
	return nil
}

// complete runs one provider call under the concurrency limits and the per-request timeout
func (s *AIService) complete(ctx context.Context, operation, prompt string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "complete",
		attribute.String("ai.provider", s.provider.Name()),
		attribute.String("ai.operation", operation),
		attribute.Int("prompt.length", len(prompt)),
	)
	defer observability.FinishSpan(span, &err)

	start := time.Now()
	defer func() {
		observability.RecordLLMCall(ctx, s.provider.Name(), operation, err, time.Since(start))
	}()

	var response string
	err = s.withConcurrencyControl(ctx, operation, func() error {
		callCtx, cancel := context.WithTimeout(ctx, config.AIRequestTimeout)
		defer cancel()

		var callErr error
		response, callErr = s.provider.Complete(callCtx, llm.Request{Prompt: prompt})
		return callErr
	})
	if err != nil {
		s.logger.Warn(ctx, "AI request failed", map[string]interface{}{
			"operation": operation,
			"provider":  s.provider.Name(),
			"job_id":    contextutils.GetJobIDFromContext(ctx),
			"error":     err.Error(),
		})
		return "", err
	}

	s.logger.Debug(ctx, "AI request completed", map[string]interface{}{
		"operation":       operation,
		"duration":        time.Since(start).String(),
		"response_length": len(response),
	})
	return response, nil
}

// Shutdown gracefully shuts down the AI service and waits for in-flight requests
func (s *AIService) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	shutdownCtx, cancel := context.WithCancel(ctx)
	s.shutdownCtx = shutdownCtx
	cancel()
	s.shutdownMu.Unlock()

	timeout := config.AIShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	ticker := time.NewTicker(config.AIShutdownPollInterval)
	defer ticker.Stop()

	for i := 0; i < int(timeout/config.AIShutdownPollInterval); i++ {
		s.statsMu.RLock()
		active := s.activeRequests
		s.statsMu.RUnlock()

		if active == 0 {
			break
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info(ctx, "AI Service shutdown completed")
	return nil
}

// isShutdown checks if the service is shutting down
func (s *AIService) isShutdown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	select {
	case <-s.shutdownCtx.Done():
		return true
	default:
		return false
	}
}

// GetConcurrencyStats returns current concurrency metrics
func (s *AIService) GetConcurrencyStats() ConcurrencyStats {
	s.statsMu.RLock()
	s.concurrencyMu.RLock()
	defer s.statsMu.RUnlock()
	defer s.concurrencyMu.RUnlock()

	operationCount := make(map[string]int)
	for op, count := range s.operationCount {
		if count > 0 {
			operationCount[op] = count
		}
	}

	return ConcurrencyStats{
		Provider:             s.provider.Name(),
		ActiveRequests:       s.activeRequests,
		MaxConcurrent:        s.maxConcurrent,
		QueuedRequests:       s.queuedRequests,
		TotalRequests:        s.totalRequests,
		OperationActiveCount: operationCount,
	}
}

// acquireGlobalSlot waits for a global concurrency slot until ctx is done
func (s *AIService) acquireGlobalSlot(ctx context.Context) error {
	select {
	case s.globalSemaphore <- struct{}{}:
		return nil
	default:
	}

	s.statsMu.Lock()
	s.queuedRequests++
	s.statsMu.Unlock()
	defer func() {
		s.statsMu.Lock()
		s.queuedRequests--
		s.statsMu.Unlock()
	}()

	select {
	case s.globalSemaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "request cancelled while waiting for global AI slot: %w", ctx.Err())
	}
}

// releaseGlobalSlot releases a global concurrency slot
func (s *AIService) releaseGlobalSlot(ctx context.Context) {
	select {
	case <-s.globalSemaphore:
		s.statsMu.Lock()
		if s.activeRequests > 0 {
			s.activeRequests--
		}
		s.statsMu.Unlock()
	default:
		s.logger.Warn(ctx, "Attempted to release global AI slot but none were acquired", nil)
	}
}

func (s *AIService) trackOperation(operation string, delta int) {
	s.concurrencyMu.Lock()
	defer s.concurrencyMu.Unlock()
	s.operationCount[operation] += delta
}

// withConcurrencyControl wraps an AI operation with concurrency limits
func (s *AIService) withConcurrencyControl(ctx context.Context, operation string, fn func() error) error {
	if s.isShutdown() {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "AI service is shutting down")
	}

	s.statsMu.Lock()
	s.totalRequests++
	s.statsMu.Unlock()

	if err := s.acquireGlobalSlot(ctx); err != nil {
		return err
	}

	s.statsMu.Lock()
	s.activeRequests++
	s.statsMu.Unlock()
	defer s.releaseGlobalSlot(ctx)

	s.trackOperation(operation, 1)
	defer s.trackOperation(operation, -1)

	return fn()
}

// cleanJSONResponse strips markdown code fences around a JSON reply
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(strings.TrimSpace(response), "```")

	return strings.TrimSpace(response)
}

// ParseTopicList splits a comma separated reply into distinct, non-empty topic names in reply order
func ParseTopicList(response string) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, part := range strings.Split(response, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		topics = append(topics, name)
	}
	return topics
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// truncateRunes cuts s to at most limit bytes without splitting a UTF-8 sequence
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
