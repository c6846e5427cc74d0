package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/internal/testutil"
)

const currentJSON = `{
  "name": "London", "dt": 1704110400,
  "sys": {"country": "GB"},
  "main": {"temp": 7.5, "feels_like": 4.2, "temp_min": 6.0, "temp_max": 8.9, "humidity": 81, "pressure": 1012},
  "weather": [{"description": "light rain"}],
  "wind": {"speed": 5.1}
}`

const forecastJSON = `{
  "city": {"name": "Paris", "country": "FR"},
  "list": [
    {"dt": 1704110400, "dt_txt": "2024-01-01 12:00:00", "main": {"temp": 9}, "weather": [{"description": "clouds"}], "wind": {"speed": 2}},
    {"dt": 1704121200, "dt_txt": "2024-01-01 15:00:00", "main": {"temp": 10}, "weather": [{"description": "sun"}], "wind": {"speed": 2}},
    {"dt": 1704153600, "dt_txt": "2024-01-02 00:00:00", "main": {"temp": 4}, "weather": [{"description": "clear sky"}], "wind": {"speed": 1}},
    {"dt": 1704240000, "dt_txt": "2024-01-03 00:00:00", "main": {"temp": 3}, "weather": [{"description": "snow"}], "wind": {"speed": 1}}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc, optFns ...func(o *Options)) (*Client, *testutil.WeatherServer) {
	t.Helper()

	srv := testutil.NewWeatherServer(t, h)

	opts := append([]func(o *Options){func(o *Options) {
		o.BaseURL = srv.URL
		o.RetryDelay = time.Millisecond
		o.RatePerSecond = 0
		o.Timeout = time.Second
	}}, optFns...)

	return New("test-key", opts...), srv
}

func TestClient_Current(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "London", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		fmt.Fprint(w, currentJSON)
	})

	s, err := c.Current(context.Background(), " London ")
	require.NoError(t, err)

	assert.EqualValues(t, 1, srv.Hits())
	assert.Equal(t, "London, GB", s.Place())
	assert.Equal(t, 7.5, s.Temperature)
	assert.Equal(t, 4.2, s.FeelsLike)
	assert.Equal(t, 81, s.Humidity)
	assert.Equal(t, 1012, s.Pressure)
	assert.Equal(t, "light rain", s.Description)
	assert.Equal(t, 5.1, s.WindSpeed)
	assert.Contains(t, s.Summary(), "London, GB: 7.5°C")
}

func TestClient_Forecast(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "16", r.URL.Query().Get("cnt"))
		fmt.Fprint(w, forecastJSON)
	})

	days, err := c.Forecast(context.Background(), "Paris", 2)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "clouds", days[0].Description)
	assert.Equal(t, 9.0, days[0].Temperature)
	assert.Equal(t, "clear sky", days[1].Description)
	assert.Equal(t, "Paris, FR", days[1].Place())
	assert.Contains(t, ForecastSummary(days), "2-day forecast for Paris, FR")
}

func TestClient_ForecastInvalidDays(t *testing.T) {
	c, srv := newTestClient(t, testutil.Respond(http.StatusOK, forecastJSON))

	for _, d := range []int{0, 6, -1} {
		_, err := c.Forecast(context.Background(), "Paris", d)
		assert.ErrorIs(t, err, ErrInvalidDays)
	}

	_, err := c.Current(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyLocation)
	assert.EqualValues(t, 0, srv.Hits())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want func(t *testing.T, err error)
	}{
		{"not found", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrLocationNotFound)
		}},
		{"rate limited", http.StatusTooManyRequests, `{}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrRateLimited)
			assert.ErrorIs(t, err, core.ErrRateLimited)
		}},
		{"unauthorized", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, func(t *testing.T, err error) {
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			assert.Equal(t, "Invalid API key", apiErr.Message)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t, testutil.Respond(tt.code, tt.body))

			_, err := c.Current(context.Background(), "Nowhere")
			require.Error(t, err)
			tt.want(t, err)
			assert.EqualValues(t, 1, srv.Hits())
		})
	}
}

func TestClient_RetriesTransientOnce(t *testing.T) {
	var calls int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, currentJSON)
	})

	s, err := c.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, "London", s.Location)
	assert.EqualValues(t, 2, srv.Hits())
}

func TestClient_ServerErrorTwice(t *testing.T) {
	c, srv := newTestClient(t, testutil.Respond(http.StatusServiceUnavailable, ""))

	_, err := c.Current(context.Background(), "London")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.EqualValues(t, 2, srv.Hits())
}

func TestClient_TimeoutTwice(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Forecast(context.Background(), "London", 3)

	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.EqualValues(t, 2, srv.Hits())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_CallerCancellation(t *testing.T) {
	c, _ := newTestClient(t, testutil.Respond(http.StatusOK, currentJSON))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Current(ctx, "London")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrProviderUnavailable)
}
