package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mohankp/sales-enablement-training/internal/middleware"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
)

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	// Map HTTP status code to appropriate error code
	var errorCode contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		errorCode = contextutils.ErrorCodeInvalidInput
		severity = contextutils.SeverityWarn
	case http.StatusUnauthorized:
		errorCode = contextutils.ErrorCodeUnauthorized
		severity = contextutils.SeverityWarn
	case http.StatusForbidden:
		errorCode = contextutils.ErrorCodeForbidden
		severity = contextutils.SeverityWarn
	case http.StatusNotFound:
		errorCode = contextutils.ErrorCodeRecordNotFound
		severity = contextutils.SeverityInfo
	case http.StatusConflict:
		errorCode = contextutils.ErrorCodeRecordExists
		severity = contextutils.SeverityInfo
	case http.StatusServiceUnavailable:
		errorCode = contextutils.ErrorCodeServiceUnavailable
		severity = contextutils.SeverityError
	default:
		errorCode = contextutils.ErrorCodeInternalError
		severity = contextutils.SeverityError
	}

	appErr := contextutils.NewAppError(errorCode, severity, message, details)

	// Send response with the original status code
	c.JSON(statusCode, appErr.ToJSON())
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)

	middleware.StandardizeAppError(c, appErr)
}

// HandleAppError handles any error and sends the matching HTTP response. A question generation
// failure additionally carries the model's raw reply.
func HandleAppError(c *gin.Context, err error) {
	var genErr *services.QuestionGenerationError
	if errors.As(err, &genErr) {
		var appErr *contextutils.AppError
		payload := gin.H{}
		if errors.As(err, &appErr) {
			for k, v := range appErr.ToJSON() {
				payload[k] = v
			}
		}
		payload["code"] = string(contextutils.ErrorCodeAIResponseInvalid)
		payload["error"] = genErr.Error()
		payload["raw_response"] = genErr.Raw
		c.JSON(http.StatusBadGateway, payload)
		return
	}

	middleware.HandleAppError(c, err)
}
