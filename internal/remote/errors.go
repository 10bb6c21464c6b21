package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Canonical failure reasons recorded in the progress file. These strings are
// part of the on-disk format; older progress files already contain them.
const (
	ReasonAccessDenied = "Access denied"
	ReasonNotFound     = "Not found"
	ReasonRateLimited  = "Rate limited"
	ReasonTimeout      = "Timeout"
	ReasonEmptyFile    = "Empty file"
)

// reasonMaxLen caps free-form reasons so a noisy error chain cannot bloat the
// progress file.
const reasonMaxLen = 50

// StatusError represents a non-success HTTP response from a provider,
// including rate limiting and authorization failures.
type StatusError struct {
	Operation  string // The operation that failed (e.g., "list_folder", "fetch_file")
	StatusCode int    // HTTP status code of the response
	Message    string // Error message from the API, if any
	Err        error  // Underlying error, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote error during %s (HTTP %d)", e.Operation, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Classify maps an error from a provider call to the coarse reason recorded
// for a failed item. Typed status errors map by code; context deadlines map
// to Timeout; anything else keeps its message, truncated.
func Classify(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusForbidden:
			return ReasonAccessDenied
		case http.StatusNotFound:
			return ReasonNotFound
		case http.StatusTooManyRequests:
			return ReasonRateLimited
		default:
			return fmt.Sprintf("HTTP %d", se.StatusCode)
		}
	}

	// http bodies sometimes surface the deadline as text rather than a
	// wrapped context error.
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return ReasonTimeout
	}

	return truncateReason(err.Error())
}

// IsRateLimited reports whether a recorded reason means the provider throttled
// us. The substring check catches provider messages that never carried a 429.
func IsRateLimited(reason string) bool {
	return reason == ReasonRateLimited || strings.Contains(strings.ToLower(reason), "rate limit")
}

// IsRateLimitError is the error-typed form of IsRateLimited.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return IsRateLimited(Classify(err))
}

func truncateReason(msg string) string {
	runes := []rune(msg)
	if len(runes) <= reasonMaxLen {
		return msg
	}
	return string(runes[:reasonMaxLen])
}
