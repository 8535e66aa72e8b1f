package speech

import (
	"strings"
	"time"
)

const (
	// EmptyTextDelay applies when there is no text to speak.
	EmptyTextDelay = 2000 * time.Millisecond
	// MinDelay is the floor for non-empty text.
	MinDelay = 2500 * time.Millisecond

	wordsPerMinute = 180
	trailingBuffer = 500 * time.Millisecond
)

// EstimateDelay estimates how long synthesized speech for text will take,
// assuming a 180 words-per-minute reading rate plus a trailing buffer.
// Deterministic and pure.
func EstimateDelay(text string) time.Duration {
	if text == "" {
		return EmptyTextDelay
	}
	words := len(strings.Fields(text))
	estimated := time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
	total := estimated + trailingBuffer
	if total < MinDelay {
		return MinDelay
	}
	return total
}
