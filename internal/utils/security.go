package contextutils

import (
	"strings"
)

// MaskAPIKey keeps the first and last four characters of a credential so it can be logged
func MaskAPIKey(apiKey string) string {
	switch n := len(apiKey); {
	case n == 0:
		return "[EMPTY]"
	case n <= 8:
		return strings.Repeat("*", n)
	default:
		return apiKey[:4] + strings.Repeat("*", n-8) + apiKey[n-4:]
	}
}
