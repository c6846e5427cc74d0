package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/wikiagent/logging"
)

const (
	// DefaultBaseURL is the OpenWeatherMap 2.5 endpoint.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 10 * time.Second

	// MaxForecastDays is the longest forecast the free API tier provides.
	MaxForecastDays = 5

	// entries per day in the 3-hour forecast feed
	entriesPerDay = 8
	maxEntries    = 40
	maxBodyBytes  = 1 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL of the provider API.
	BaseURL string

	// Timeout bounds each request attempt.
	Timeout time.Duration

	// RetryDelay is the pause before the single retry.
	RetryDelay time.Duration

	// Units passed to the provider. Snapshot fields assume "metric".
	Units string

	// RatePerSecond limits outbound requests; zero disables limiting.
	RatePerSecond float64

	// Burst is the limiter bucket size.
	Burst int

	// HTTPClient performs the requests.
	HTTPClient *http.Client

	// Logger receives retry and failure diagnostics.
	Logger logging.Logger
}

// Client fetches current conditions and forecasts.
type Client struct {
	apiKey  string
	opts    Options
	limiter *rate.Limiter
	logger  logging.Logger
}

// New creates a Client for the given API key.
func New(apiKey string, optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		RetryDelay:    250 * time.Millisecond,
		Units:         "metric",
		RatePerSecond: 1,
		Burst:         5,
		HTTPClient:    &http.Client{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Client{
		apiKey: apiKey,
		opts:   opts,
		logger: logging.Ensure(opts.Logger),
	}

	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return c
}

// Current returns the current conditions at location.
func (c *Client) Current(ctx context.Context, location string) (Snapshot, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Snapshot{}, ErrEmptyLocation
	}

	var resp owmCurrent
	if err := c.get(ctx, "/weather", url.Values{"q": {location}}, &resp); err != nil {
		return Snapshot{}, err
	}

	return resp.snapshot(), nil
}

// Forecast returns one snapshot per day, starting today, for days in 1..MaxForecastDays.
func (c *Client) Forecast(ctx context.Context, location string, days int) ([]Snapshot, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrEmptyLocation
	}

	if days < 1 || days > MaxForecastDays {
		return nil, ErrInvalidDays
	}

	cnt := days * entriesPerDay
	if cnt > maxEntries {
		cnt = maxEntries
	}

	var resp owmForecast
	if err := c.get(ctx, "/forecast", url.Values{"q": {location}, "cnt": {fmt.Sprint(cnt)}}, &resp); err != nil {
		return nil, err
	}

	return resp.daily(days), nil
}

// get performs at most two attempts. Only transient failures are retried.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("appid", c.apiKey)
	params.Set("units", c.opts.Units)
	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + path + "?" + params.Encode()

	const attempts = 2

	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.logger.Warn("weather.request.retry", "path", path, "attempt", i+1, "error", lastErr)

			timer := time.NewTimer(c.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := c.attempt(ctx, endpoint, out)
		if err == nil {
			return nil
		}

		// the caller gave up; no point in retrying or blaming the provider
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var te *transientError
		if !errors.As(err, &te) {
			return err
		}

		lastErr = te.cause
	}

	c.logger.Error("weather.request.unavailable", "path", path, "attempts", attempts, "error", lastErr)

	return &unavailable{cause: lastErr}
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string { return e.cause.Error() }

func (c *Client) attempt(ctx context.Context, endpoint string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return &transientError{cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &transientError{cause: fmt.Errorf("read weather response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode weather response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrLocationNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return &transientError{cause: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		var apiErr owmError
		_ = json.Unmarshal(body, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}
}
