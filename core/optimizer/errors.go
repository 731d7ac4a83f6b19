package optimizer

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch wraps every failed fetch attempt.
	ErrFetch = errors.New("optimizer fetch failed")
	// ErrMalformedResponse is returned for responses that cannot be turned
	// into a plan. It is not retried within a cycle.
	ErrMalformedResponse = errors.New("malformed optimizer response")
	// ErrIncompleteInputs is returned when the cycle was skipped because
	// inputs or the battery state were unavailable.
	ErrIncompleteInputs = errors.New("incomplete optimizer inputs")
)

// StatusError reports a non-success HTTP status from the optimizer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("optimizer returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether a retry may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429 || e.Code == 408
}
