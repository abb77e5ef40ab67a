// Package domain holds the research entities and the rules that apply to them
// regardless of storage or transport.
package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Content limits, in characters.
const (
	MaxAnalysisChars = 3000
	MaxStoredChars   = 5000
	MaxKeyPoints     = 5
)

// DefaultRelevance is assigned when a model response carries no usable score.
const DefaultRelevance = 0.5

// ErrInvalid marks input that failed validation.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ClampScore bounds a score to [0,1].
func ClampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
