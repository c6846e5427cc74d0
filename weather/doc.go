// Package weather is a thin client for the OpenWeatherMap v2.5 API.
//
// Responses are normalized into Snapshot values so callers never see the
// provider's wire format. Every request attempt runs under a bounded timeout;
// network failures, timeouts and 5xx responses are retried exactly once,
// client errors (4xx) never are.
package weather
