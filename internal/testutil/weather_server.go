package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// WeatherServer is an httptest server standing in for the OpenWeatherMap API.
// It counts every request it receives.
type WeatherServer struct {
	*httptest.Server
	hits atomic.Int32
}

// NewWeatherServer starts a server answering with h. It is closed on test cleanup.
func NewWeatherServer(t testing.TB, h http.HandlerFunc) *WeatherServer {
	t.Helper()
	s := &WeatherServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits returns the number of requests served so far.
func (s *WeatherServer) Hits() int { return int(s.hits.Load()) }

// Respond answers every request with code and body.
func Respond(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}
}

// Stall holds every request until the client gives up or d elapses.
func Stall(d time.Duration) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(d):
		}
	}
}
