package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRateLimited is the sentinel behind every *Error.
	ErrRateLimited = errors.New("rate limited")

	// ErrConfig is returned for invalid budget configuration.
	ErrConfig = errors.New("invalid rate limit config")
)

// Error reports an exhausted budget and when the caller may retry.
type Error struct {
	Budget     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: retry after %ds", ErrRateLimited.Error(), e.Budget, e.RetryAfterSeconds())
}

func (e *Error) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *Error) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var rl *Error
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
