package gbp

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned when every refresh-and-retry attempt
// failed with an auth-flavored response. The token may be expired or
// revoked beyond what a refresh can repair.
var ErrRetriesExhausted = errors.New("token may be expired, retries exhausted")

// APIError is a structured non-2xx response from a GBP surface. It is
// not retried; a validation failure does not become valid by retrying.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gbp api error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("gbp api error (status %d)", e.StatusCode)
}

// ParseError indicates a 2xx response whose body was not the expected
// JSON. This signals a client-code bug rather than an auth problem, so
// it is never retried.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response: %v (body: %s)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
