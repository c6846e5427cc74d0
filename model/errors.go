package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProviderError is returned by adapters when the vendor API answered with a
// non-success status.
type ProviderError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the status is worth one more attempt.
func (e *ProviderError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusConflict,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// statusOf extracts the HTTP status code from a ProviderError, or 0.
func statusOf(err error) int {
	var e *ProviderError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from a ProviderError, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ProviderError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
