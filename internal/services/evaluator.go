package services

import (
	"context"
	"fmt"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// CorrectFeedback is returned for every correct answer
const CorrectFeedback = "Correct!"

// Evaluation methods, reported in metrics
const (
	EvalMethodExact    = "exact"
	EvalMethodSemantic = "semantic"
	EvalMethodNone     = "none"
)

// AnswerEvaluatorInterface grades a learner's answer
type AnswerEvaluatorInterface interface {
	Evaluate(ctx context.Context, userAnswer, correctAnswer, questionText string) (bool, string)
}

// AnswerEvaluator grades answers by normalized comparison, optionally falling back to a
// language model equivalence check, and explains incorrect answers
type AnswerEvaluator struct {
	ai       AIServiceInterface
	semantic bool
	logger   *observability.Logger
}

// NewAnswerEvaluator creates an evaluator; cfg.Assessment.SemanticEvaluation enables the model fallback
func NewAnswerEvaluator(ai AIServiceInterface, cfg *config.Config, logger *observability.Logger) *AnswerEvaluator {
	return &AnswerEvaluator{
		ai:       ai,
		semantic: cfg.Assessment.SemanticEvaluation,
		logger:   logger,
	}
}

// Evaluate never fails. Collaborator errors degrade to "incorrect" and to FallbackFeedback.
func (e *AnswerEvaluator) Evaluate(ctx context.Context, userAnswer, correctAnswer, questionText string) (bool, string) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "evaluate_answer",
		attribute.Bool("semantic.enabled", e.semantic),
	)
	defer span.End()

	if AnswersMatch(userAnswer, correctAnswer) {
		span.SetAttributes(attribute.String("evaluation.method", EvalMethodExact))
		observability.RecordAnswerEvaluated(ctx, true, EvalMethodExact)
		return true, CorrectFeedback
	}

	if e.semantic {
		equivalent, err := e.ai.CheckEquivalence(ctx, questionText, correctAnswer, userAnswer)
		if err != nil {
			e.logger.Warn(ctx, "Semantic evaluation failed, treating answer as incorrect", map[string]interface{}{
				"error": err.Error(),
			})
		} else if equivalent {
			span.SetAttributes(attribute.String("evaluation.method", EvalMethodSemantic))
			observability.RecordAnswerEvaluated(ctx, true, EvalMethodSemantic)
			return true, CorrectFeedback
		}
	}

	method := EvalMethodNone
	if e.semantic {
		method = EvalMethodSemantic
	}
	span.SetAttributes(attribute.String("evaluation.method", method))
	observability.RecordAnswerEvaluated(ctx, false, method)

	// The explanation is returned exactly as the model wrote it
	explanation, err := e.ai.ExplainAnswer(ctx, questionText, userAnswer, correctAnswer)
	if err != nil {
		e.logger.Error(ctx, "Failed to generate answer explanation", err)
		return false, FallbackFeedback(correctAnswer)
	}
	return false, explanation
}

// FallbackFeedback is used when the explanation request fails
func FallbackFeedback(correctAnswer string) string {
	return fmt.Sprintf("Incorrect. The correct answer is: %s", correctAnswer)
}
