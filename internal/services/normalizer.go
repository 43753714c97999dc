package services

import (
	"strings"
	"unicode"
)

// NormalizeAnswer lower-cases s and drops all white space as well as '.', ',' and '-'.
// No other folding is applied.
func NormalizeAnswer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '.', ',', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AnswersMatch reports whether a and b are equal after normalization
func AnswersMatch(a, b string) bool {
	return NormalizeAnswer(a) == NormalizeAnswer(b)
}
