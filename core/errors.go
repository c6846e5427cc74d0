package core

import "errors"

var (
	// ErrDuplicateName is returned when a tool name is registered twice.
	ErrDuplicateName = errors.New("duplicate tool name")

	// ErrUnknownTool is returned when a tool name is not present in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrProviderUnavailable marks an upstream provider (reasoning, embedding or
	// external data) that failed after its retry budget was spent.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRateLimited marks an upstream provider that rejected the request with a
	// rate limit response.
	ErrRateLimited = errors.New("rate limited")

	// ErrRoundLimitExceeded is returned by RoundLimiter once the budget is spent.
	ErrRoundLimitExceeded = errors.New("reasoning round limit exceeded")
)

// IsUpstreamFailure reports whether err ends a turn instead of being fed back
// to the reasoning step.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}
