package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sales-trainer"

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span named "<service>.<function>".
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceAIFunction starts a new span for an AI service function.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceAssessmentFunction starts a new span for a session, selection or evaluation function.
func TraceAssessmentFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "assessment", functionName, attributes...)
}

// TraceIngestionFunction starts a new span for an ingestion function.
func TraceIngestionFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ingestion", functionName, attributes...)
}

// TraceKnowledgeBaseFunction starts a new span for a retrieval function.
func TraceKnowledgeBaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "knowledge_base", functionName, attributes...)
}

// TraceUserFunction starts a new span for a user or auth service function.
func TraceUserFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "user", functionName, attributes...)
}

// TraceProjectFunction starts a new span for a project or topic function.
func TraceProjectFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "project", functionName, attributes...)
}

// TraceWorkerFunction starts a new span for a worker function.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}

// TraceStorageFunction starts a new span for a blob storage function.
func TraceStorageFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "storage", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeSessionID returns a tracing attribute for an assessment session ID.
func AttributeSessionID(id int) attribute.KeyValue {
	return attribute.Int("session.id", id)
}

// AttributeTopicID returns a tracing attribute for a topic ID.
func AttributeTopicID(id int) attribute.KeyValue {
	return attribute.Int("topic.id", id)
}

// AttributeProjectID returns a tracing attribute for a project scope; nil means unscoped.
func AttributeProjectID(id *int) attribute.KeyValue {
	if id == nil {
		return attribute.Int("project.id", 0)
	}
	return attribute.Int("project.id", *id)
}

// AttributeJobID returns a tracing attribute for an ingestion job ID.
func AttributeJobID(id int) attribute.KeyValue {
	return attribute.Int("job.id", id)
}

// AttributeLevel returns a tracing attribute for a difficulty level.
func AttributeLevel(level string) attribute.KeyValue {
	return attribute.String("level", level)
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}
