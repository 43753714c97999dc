package handlers

import (
	"net/http"

	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// TokenRequest is the password grant body. It is accepted as a form or as JSON.
type TokenRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// AuthHandler issues bearer tokens for the admin API
type AuthHandler struct {
	authService services.AuthServiceInterface
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService services.AuthServiceInterface, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// Token exchanges a username and password for an access token
func (h *AuthHandler) Token(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "issue_token")
	defer observability.FinishSpan(span, nil)

	var req TokenRequest
	// ShouldBind picks form or JSON binding from the Content-Type
	if err := c.ShouldBind(&req); err != nil {
		HandleValidationError(c, "credentials", "", "username and password are required")
		return
	}
	span.SetAttributes(attribute.String("user.username", req.Username))

	token, err := h.authService.IssueToken(ctx, req.Username, req.Password)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}
