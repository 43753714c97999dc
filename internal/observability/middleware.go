package observability

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
)

// GinMiddleware creates OpenTelemetry middleware for Gin HTTP requests
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanErrorMiddleware marks the request span as failed for 4xx/5xx responses and
// copies AppError codes onto it. It must run inside GinMiddleware.
func SpanErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		statusCode := c.Writer.Status()
		if statusCode < 400 {
			return
		}
		span := trace.SpanFromContext(c.Request.Context())
		if !span.SpanContext().IsValid() {
			return
		}

		severity := determineErrorSeverity(statusCode, c.Errors)
		errorMsg := "client error"
		if statusCode >= 500 {
			errorMsg = "server error"
		}

		var appErr *contextutils.AppError
		for _, ginErr := range c.Errors {
			if errors.As(ginErr.Err, &appErr) {
				errorMsg = appErr.Message
				break
			}
			errorMsg = ginErr.Error()
		}

		span.RecordError(errors.New(errorMsg))
		span.SetStatus(codes.Error, errorMsg)
		span.SetAttributes(
			attribute.Int("http.status_code", statusCode),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.FullPath()),
			attribute.String("error.handler", c.HandlerName()),
			attribute.String("error.severity", severity),
		)
		if appErr != nil {
			span.SetAttributes(
				attribute.String("error.code", string(appErr.Code)),
				attribute.Bool("error.retryable", contextutils.IsRetryable(appErr)),
			)
		}
		if userID, ok := c.Get("user_id"); ok {
			if id, ok := userID.(int); ok {
				span.SetAttributes(attribute.Int("error.user_id", id))
			}
		}
		if statusCode >= 500 {
			span.SetAttributes(attribute.Bool("error.server_error", true))
		}
	}
}

// determineErrorSeverity determines the severity level based on status code and error types
func determineErrorSeverity(statusCode int, ginErrors []*gin.Error) string {
	for _, err := range ginErrors {
		var appErr *contextutils.AppError
		if errors.As(err.Err, &appErr) {
			return string(appErr.Severity)
		}
	}

	switch {
	case statusCode >= 500:
		return string(contextutils.SeverityError)
	case statusCode >= 400:
		return string(contextutils.SeverityWarn)
	default:
		return string(contextutils.SeverityInfo)
	}
}
