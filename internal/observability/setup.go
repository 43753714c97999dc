package observability

import (
	"context"

	"github.com/mohankp/sales-enablement-training/internal/config"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SetupObservability initializes tracing, metrics, and logging for a service
func SetupObservability(cfg *config.OpenTelemetryConfig, serviceName string, logLevel string) (result0 trace.TracerProvider, result1 *metric.MeterProvider, result2 *Logger, err error) {
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	logger := NewLoggerWithLevel(cfg, ParseLevel(logLevel))

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if cfg.EnableTracing {
		tp, err = InitStandardTracing(cfg)
		if err != nil {
			return nil, nil, nil, contextutils.WrapError(err, "failed to initialize tracing")
		}
		otel.SetTracerProvider(tp)
		logger.Info(context.Background(), "Tracing enabled", map[string]interface{}{"service_name": cfg.ServiceName, "protocol": cfg.Protocol})
	}
	InitTracing(cfg)
	InitGlobalTracer()

	var mp *metric.MeterProvider
	if cfg.EnableMetrics {
		mp, err = InitMetrics(cfg)
		if err != nil {
			return nil, nil, nil, contextutils.WrapError(err, "failed to initialize metrics")
		}
		otel.SetMeterProvider(mp)
	}
	InitDomainMetrics()

	return tp, mp, logger, nil
}

// ShutdownProviders flushes and stops the providers returned by SetupObservability. Failures are
// logged, not returned.
func ShutdownProviders(ctx context.Context, tp trace.TracerProvider, mp *metric.MeterProvider, logger *Logger) {
	if sdkTP, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		if err := sdkTP.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
		}
	}
	_ = logger.Sync()
}
