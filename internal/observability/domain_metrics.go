package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const meterName = "sales-trainer"

type domainInstruments struct {
	answersEvaluated otelmetric.Int64Counter
	questionsServed  otelmetric.Int64Counter
	ingestionJobs    otelmetric.Int64Counter
	topicsExtracted  otelmetric.Int64Counter
	llmCalls         otelmetric.Int64Counter
	llmLatency       otelmetric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	instruments     *domainInstruments
)

// InitDomainMetrics creates the service's counters against the global meter provider.
// Recording functions call it lazily, so an explicit call only fixes the provider early.
func InitDomainMetrics() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)
		d := &domainInstruments{}
		// Instrument constructors only fail on invalid names; a failed one stays nil and is skipped.
		d.answersEvaluated, _ = meter.Int64Counter("assessment.answers.evaluated",
			otelmetric.WithDescription("Answers evaluated, by outcome and evaluation method"))
		d.questionsServed, _ = meter.Int64Counter("assessment.questions.served",
			otelmetric.WithDescription("Questions served, by source (bank or generated)"))
		d.ingestionJobs, _ = meter.Int64Counter("ingestion.jobs.finished",
			otelmetric.WithDescription("Ingestion jobs reaching a terminal state"))
		d.topicsExtracted, _ = meter.Int64Counter("ingestion.topics.extracted",
			otelmetric.WithDescription("Topics extracted from ingested documents"))
		d.llmCalls, _ = meter.Int64Counter("llm.calls",
			otelmetric.WithDescription("LLM completions, by provider and outcome"))
		d.llmLatency, _ = meter.Float64Histogram("llm.call.duration",
			otelmetric.WithDescription("LLM completion latency"), otelmetric.WithUnit("s"))
		instruments = d
	})
}

func getInstruments() *domainInstruments {
	InitDomainMetrics()
	return instruments
}

// RecordAnswerEvaluated counts one evaluated answer; method is "exact", "semantic" or "none"
func RecordAnswerEvaluated(ctx context.Context, correct bool, method string) {
	if c := getInstruments().answersEvaluated; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.Bool("correct", correct), attribute.String("method", method)))
	}
}

// RecordQuestionServed counts one question handed to a learner
func RecordQuestionServed(ctx context.Context, source string, level string) {
	if c := getInstruments().questionsServed; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("source", source), attribute.String("level", level)))
	}
}

// RecordIngestionJob counts one job reaching a terminal status
func RecordIngestionJob(ctx context.Context, status string, topics int) {
	d := getInstruments()
	if d.ingestionJobs != nil {
		d.ingestionJobs.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
	if d.topicsExtracted != nil && topics > 0 {
		d.topicsExtracted.Add(ctx, int64(topics))
	}
}

// RecordLLMCall counts one completion request and its latency
func RecordLLMCall(ctx context.Context, provider string, operation string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	d := getInstruments()
	if d.llmCalls != nil {
		d.llmCalls.Add(ctx, 1, attrs)
	}
	if d.llmLatency != nil {
		d.llmLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
}
