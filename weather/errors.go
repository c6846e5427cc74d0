package weather

import (
	"errors"
	"fmt"

	"github.com/hupe1980/wikiagent/core"
)

var (
	// ErrLocationNotFound is returned when the provider does not know the location.
	ErrLocationNotFound = errors.New("location not found")

	// ErrRateLimited is returned on HTTP 429. It wraps core.ErrRateLimited.
	ErrRateLimited = fmt.Errorf("weather provider: %w", core.ErrRateLimited)

	// ErrProviderUnavailable is returned when the provider could not be reached
	// after the retry budget. It wraps core.ErrProviderUnavailable.
	ErrProviderUnavailable = fmt.Errorf("weather provider: %w", core.ErrProviderUnavailable)

	// ErrInvalidDays is returned for forecast lengths outside 1..MaxForecastDays.
	ErrInvalidDays = fmt.Errorf("forecast days must be between 1 and %d", MaxForecastDays)

	// ErrEmptyLocation is returned for a blank location.
	ErrEmptyLocation = errors.New("location must not be empty")
)

// APIError is a non-retryable client error reported by the provider.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weather provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("weather provider returned status %d: %s", e.StatusCode, e.Message)
}

// unavailable wraps cause so that it matches both ErrProviderUnavailable and
// the underlying failure.
type unavailable struct {
	cause error
}

func (e *unavailable) Error() string {
	return ErrProviderUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailable) Unwrap() []error { return []error{ErrProviderUnavailable, e.cause} }
