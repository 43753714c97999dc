// Package middleware provides authentication and error recovery middleware for the Gin web framework.
package middleware

import (
	"context"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	// UsernameKey is the key used to store the token subject in the gin context
	UsernameKey = "username"
	// IsAdminKey is the key used to store the admin flag in the gin context
	IsAdminKey = "is_admin"
	// LastSessionIDKey is the cookie-session key remembering the caller's latest assessment session
	LastSessionIDKey = "last_session_id"
)

// TokenVerifier checks a bearer token and returns its claims
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*services.TokenClaims, error)
}

// RequireAdmin returns a middleware that requires a valid bearer token issued to an admin. The
// admin's user id is put on the request context for handlers to log.
func RequireAdmin(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, verifier)
		if !ok {
			return
		}
		if !claims.IsAdmin {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrForbidden, "Admin access required"))
			c.Abort()
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}
		c.Set(UsernameKey, claims.Username)
		c.Set(IsAdminKey, true)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func authenticate(c *gin.Context, verifier TokenVerifier) (*services.TokenClaims, bool) {
	token, ok := bearerToken(c)
	if !ok {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "Authentication required"))
		c.Abort()
		return nil, false
	}

	claims, err := verifier.VerifyToken(c.Request.Context(), token)
	if err != nil {
		HandleAppError(c, err)
		c.Abort()
		return nil, false
	}
	return claims, true
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
