package resilience

import (
	"errors"
	"time"
)

// RateLimitError represents a remote rate limit response.
type RateLimitError struct {
	Service    string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}
