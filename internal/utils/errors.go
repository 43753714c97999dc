// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the training service.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a standardized error code for API responses
type ErrorCode string

const (
	// Database error codes

	// ErrorCodeDatabaseConnection indicates a database connection error
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a database query error
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeDatabaseTransaction indicates a database transaction error
	ErrorCodeDatabaseTransaction ErrorCode = "DATABASE_TRANSACTION_ERROR"
	// ErrorCodeRecordNotFound indicates that a requested record was not found
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	// ErrorCodeRecordExists indicates that a record already exists (duplicate key)
	ErrorCodeRecordExists ErrorCode = "RECORD_ALREADY_EXISTS"

	// Validation error codes

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingRequired indicates that a required field is missing
	ErrorCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	// ErrorCodeValidationFailed indicates that validation has failed
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Authentication error codes

	// ErrorCodeUnauthorized indicates that the caller is not authenticated
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden indicates that the caller may not access the resource
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeInvalidCredentials indicates that the provided credentials are invalid
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	// ErrorCodeTokenExpired indicates that the bearer token has expired
	ErrorCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// Service error codes

	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"
	// ErrorCodeConflict indicates that an operation conflicts with the current state
	ErrorCodeConflict ErrorCode = "CONFLICT"

	// Assessment error codes

	// ErrorCodeSessionNotFound indicates that the assessment session does not exist
	ErrorCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// ErrorCodeTopicNotFound indicates that a pinned or requested topic does not exist
	ErrorCodeTopicNotFound ErrorCode = "TOPIC_NOT_FOUND"
	// ErrorCodeNoTopics indicates that no topics exist in the requested scope
	ErrorCodeNoTopics ErrorCode = "NO_TOPICS"
	// ErrorCodeQuestionNotFound indicates that the question is not in the session history
	ErrorCodeQuestionNotFound ErrorCode = "QUESTION_NOT_FOUND"
	// ErrorCodeQuestionAlreadyAnswered indicates that the served question was already answered
	ErrorCodeQuestionAlreadyAnswered ErrorCode = "QUESTION_ALREADY_ANSWERED"
	// ErrorCodeProjectNotFound indicates that the project does not exist
	ErrorCodeProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"

	// Ingestion error codes

	// ErrorCodeJobNotFound indicates that the processing job does not exist
	ErrorCodeJobNotFound ErrorCode = "JOB_NOT_FOUND"
	// ErrorCodeJobFinished indicates an attempted transition out of a terminal job state
	ErrorCodeJobFinished ErrorCode = "JOB_ALREADY_FINISHED"
	// ErrorCodeJobClaimed indicates that another worker already moved the job to Processing
	ErrorCodeJobClaimed ErrorCode = "JOB_ALREADY_CLAIMED"
	// ErrorCodeDocumentUnreadable indicates that no text could be extracted from a document
	ErrorCodeDocumentUnreadable ErrorCode = "DOCUMENT_UNREADABLE"

	// AI Service error codes

	// ErrorCodeAIProviderUnavailable indicates that the AI provider is unavailable
	ErrorCodeAIProviderUnavailable ErrorCode = "AI_PROVIDER_UNAVAILABLE"
	// ErrorCodeAIRequestFailed indicates that the AI request failed
	ErrorCodeAIRequestFailed ErrorCode = "AI_REQUEST_FAILED"
	// ErrorCodeAIResponseInvalid indicates that the AI response is invalid
	ErrorCodeAIResponseInvalid ErrorCode = "AI_RESPONSE_INVALID"
	// ErrorCodeAIConfigInvalid indicates that the AI configuration is invalid
	ErrorCodeAIConfigInvalid ErrorCode = "AI_CONFIG_INVALID"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

// Error types for consistent error handling with associated codes and severity
var (
	// Database errors
	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrDatabaseTransaction = &AppError{
		Code:     ErrorCodeDatabaseTransaction,
		Severity: SeverityError,
		Message:  "Database transaction failed",
	}

	ErrRecordNotFound = &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  "Record not found",
	}

	ErrRecordExists = &AppError{
		Code:     ErrorCodeRecordExists,
		Severity: SeverityWarn,
		Message:  "Record already exists",
	}

	// Validation errors
	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input provided",
	}

	ErrMissingRequired = &AppError{
		Code:     ErrorCodeMissingRequired,
		Severity: SeverityWarn,
		Message:  "Required field is missing",
	}

	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	// Authentication errors
	ErrUnauthorized = &AppError{
		Code:     ErrorCodeUnauthorized,
		Severity: SeverityWarn,
		Message:  "Authentication required",
	}

	ErrForbidden = &AppError{
		Code:     ErrorCodeForbidden,
		Severity: SeverityWarn,
		Message:  "Access forbidden",
	}

	ErrInvalidCredentials = &AppError{
		Code:     ErrorCodeInvalidCredentials,
		Severity: SeverityWarn,
		Message:  "Incorrect username or password",
	}

	ErrTokenExpired = &AppError{
		Code:     ErrorCodeTokenExpired,
		Severity: SeverityInfo,
		Message:  "Token has expired",
	}

	// Service errors
	ErrServiceUnavailable = &AppError{
		Code:     ErrorCodeServiceUnavailable,
		Severity: SeverityError,
		Message:  "Service temporarily unavailable",
	}

	ErrTimeout = &AppError{
		Code:     ErrorCodeTimeout,
		Severity: SeverityWarn,
		Message:  "Request timed out",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}

	ErrConflict = &AppError{
		Code:     ErrorCodeConflict,
		Severity: SeverityWarn,
		Message:  "Operation conflicts with current state",
	}

	// Assessment errors
	ErrSessionNotFound = &AppError{
		Code:     ErrorCodeSessionNotFound,
		Severity: SeverityInfo,
		Message:  "Session not found",
	}

	ErrTopicNotFound = &AppError{
		Code:     ErrorCodeTopicNotFound,
		Severity: SeverityInfo,
		Message:  "Specified topic not found.",
	}

	ErrNoTopics = &AppError{
		Code:     ErrorCodeNoTopics,
		Severity: SeverityInfo,
		Message:  "No topics found. Please ingest a PDF first.",
	}

	ErrQuestionNotFound = &AppError{
		Code:     ErrorCodeQuestionNotFound,
		Severity: SeverityInfo,
		Message:  "Question not found in history",
	}

	ErrQuestionAlreadyAnswered = &AppError{
		Code:     ErrorCodeQuestionAlreadyAnswered,
		Severity: SeverityInfo,
		Message:  "Question has already been answered",
	}

	ErrProjectNotFound = &AppError{
		Code:     ErrorCodeProjectNotFound,
		Severity: SeverityInfo,
		Message:  "Project not found",
	}

	// Ingestion errors
	ErrJobNotFound = &AppError{
		Code:     ErrorCodeJobNotFound,
		Severity: SeverityInfo,
		Message:  "Job not found",
	}

	ErrJobFinished = &AppError{
		Code:     ErrorCodeJobFinished,
		Severity: SeverityWarn,
		Message:  "Job has already finished",
	}

	ErrJobClaimed = &AppError{
		Code:     ErrorCodeJobClaimed,
		Severity: SeverityInfo,
		Message:  "Job is already being processed",
	}

	ErrDocumentUnreadable = &AppError{
		Code:     ErrorCodeDocumentUnreadable,
		Severity: SeverityWarn,
		Message:  "No text could be extracted from the document",
	}

	// AI Service errors
	ErrAIProviderUnavailable = &AppError{
		Code:     ErrorCodeAIProviderUnavailable,
		Severity: SeverityError,
		Message:  "AI provider is currently unavailable",
	}

	ErrAIRequestFailed = &AppError{
		Code:     ErrorCodeAIRequestFailed,
		Severity: SeverityError,
		Message:  "AI request failed",
	}

	ErrAIResponseInvalid = &AppError{
		Code:     ErrorCodeAIResponseInvalid,
		Severity: SeverityError,
		Message:  "Invalid response from AI service",
	}

	ErrAIConfigInvalid = &AppError{
		Code:     ErrorCodeAIConfigInvalid,
		Severity: SeverityError,
		Message:  "AI configuration is invalid",
	}
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    err,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible.
// When the format contains %w the formatted error becomes the cause.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	var cause error = err
	var message string
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)
		cause = wrappedErr
		message = wrappedErr.Error()
	} else {
		message = fmt.Sprintf(format, args...)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  message,
			Details:  appErr.Error(),
			Cause:    cause,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  message,
		Details:  err.Error(),
		Cause:    cause,
	}
}

// ErrorWithContextf creates a new error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error (or anything it wraps) matches a specific AppError type
func IsError(err error, target *AppError) bool {
	return errors.Is(err, target)
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// GetErrorSeverity returns the severity level from an error if it's an AppError, otherwise returns error
func GetErrorSeverity(err error) SeverityLevel {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityError
}

// IsRetryable determines if an error should be retried based on its type and severity
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection, ErrorCodeAIProviderUnavailable:
			return appErr.Severity != SeverityFatal
		}
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     string(e.Code),
		"message":  e.Message,
		"severity": string(e.Severity),
		"error":    e.Message,
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	result["retryable"] = IsRetryable(e)

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey is used to store the authenticated user ID in context
	UserIDKey ContextKey = "userID"
	// JobIDKey is used to tag log lines and LLM calls with the ingestion job being processed
	JobIDKey ContextKey = "jobID"
	// WorkerInstanceKey names the worker instance that claims jobs run under this context
	WorkerInstanceKey ContextKey = "workerInstance"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(UserIDKey).(int); ok {
		return userID
	}
	return 0
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetJobIDFromContext extracts the ingestion job ID from context, returning 0 if not found
func GetJobIDFromContext(ctx context.Context) int {
	if jobID, ok := ctx.Value(JobIDKey).(int); ok {
		return jobID
	}
	return 0
}

// WithJobID returns a new context with the ingestion job ID set
func WithJobID(ctx context.Context, jobID int) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetWorkerInstanceFromContext returns the claiming worker instance, or "" outside a worker
func GetWorkerInstanceFromContext(ctx context.Context) string {
	instance, _ := ctx.Value(WorkerInstanceKey).(string)
	return instance
}

// WithWorkerInstance returns a new context carrying the worker instance name
func WithWorkerInstance(ctx context.Context, instance string) context.Context {
	return context.WithValue(ctx, WorkerInstanceKey, instance)
}
