package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseLimit reads the "limit" query param. Missing or invalid values give defaultLimit and
// anything above maxLimit is clamped.
func ParseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// parseIDParam reads a positive integer path param, writing a 400 response when it is not one
func parseIDParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		HandleValidationError(c, name, raw, "must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseOptionalID parses an optional positive integer from a query or form value.
// An empty value yields nil.
func parseOptionalID(raw string) (*int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}
