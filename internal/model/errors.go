package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedResponse marks a provider reply that could not be parsed into the
// expected shape. Callers treat it like a transport failure and ask the
// provider again.
var ErrMalformedResponse = errors.New("malformed provider response")

// ErrUnprocessable marks a work item the operation can never succeed on, such
// as a posting without a description. It is not retried.
var ErrUnprocessable = errors.New("unprocessable work item")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
