package handlers

import (
	"github.com/mohankp/sales-enablement-training/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// rememberSession stores the latest assessment session id in the cookie session so a browser
// console can resume it. Failures are ignored; the id is also in the response body.
func rememberSession(c *gin.Context, sessionID int) {
	session := sessions.Default(c)
	session.Set(middleware.LastSessionIDKey, sessionID)
	_ = session.Save()
}

// LastSessionID returns the assessment session remembered for this browser, if any
func LastSessionID(c *gin.Context) (int, bool) {
	value := sessions.Default(c).Get(middleware.LastSessionIDKey)
	if value == nil {
		return 0, false
	}
	id, ok := value.(int)
	return id, ok
}
