package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWithContextAddsTraceInfo(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	tracer := tp.Tracer("test-tracer")

	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	logger.Info(ctx, "question served", map[string]interface{}{"session_id": 4})

	entries := observedLogs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
	assert.EqualValues(t, 4, fields["session_id"])
}

func TestLogWithContextNoSpan(t *testing.T) {
	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Info(context.Background(), "no span", nil)

	entries := observedLogs.All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
}

func TestLoggerErrorDoesNotMutateCallerFields(t *testing.T) {
	core, observedLogs := observer.New(zap.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	fields := map[string]interface{}{"job_id": 3}
	logger.Error(context.Background(), "job failed", errors.New("boom"), fields)

	assert.NotContains(t, fields, "error")
	require.Len(t, observedLogs.All(), 1)
	assert.Equal(t, "boom", observedLogs.All()[0].ContextMap()["error"])
	assert.Equal(t, zapcore.ErrorLevel, observedLogs.All()[0].Level)
}

func TestLoggerRespectsLevel(t *testing.T) {
	core, observedLogs := observer.New(zap.WarnLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Debug(context.Background(), "debug")
	logger.Info(context.Background(), "info")
	logger.Warn(context.Background(), "warn")

	require.Len(t, observedLogs.All(), 1)
	assert.Equal(t, "warn", observedLogs.All()[0].Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNewLogger_DisabledIsNop(t *testing.T) {
	logger := NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	require.NotNil(t, logger)
	logger.Info(context.Background(), "dropped")

	assert.NotNil(t, NewLogger(nil))
}
