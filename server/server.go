// Package server exposes a WikiAgent over HTTP.
//
// Routes:
//
//	POST   /chat                   one turn, full transcript
//	POST   /ask                    one turn, answer only
//	GET    /health                 liveness plus session and index counts
//	DELETE /sessions/{id}          drop a session
//	GET    /observability/status   telemetry configuration
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/wikiagent"
	"github.com/hupe1980/wikiagent/internal/telemetry"
	"github.com/hupe1980/wikiagent/logging"
)

// ChunkCounter reports the number of indexed chunks for /health.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// Options configures the Server.
type Options struct {
	Addr                string
	Environment         string
	CORSOrigins         []string // "*" allows any origin
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Index is optional; /health reports zero chunks without it.
	Index ChunkCounter

	Telemetry telemetry.Status
	Logger    logging.Logger
}

// Server is the wikiagent HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     logging.Logger
}

// New creates a Server with all routes configured.
func New(agent *wikiagent.WikiAgent, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:                ":8000",
		Environment:         "development",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        120 * time.Second,
		MaxRequestBodyBytes: 1 << 20,
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	logger := logging.Ensure(opts.Logger)

	h := &handlers{
		agent:        agent,
		index:        opts.Index,
		environment:  opts.Environment,
		telemetry:    opts.Telemetry,
		maxBodyBytes: opts.MaxRequestBodyBytes,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /observability/status", h.handleObservabilityStatus)

	// Outermost first: otel, request id, cors, logging, recovery, mux.
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = corsMiddleware(opts.CORSOrigins, handler)
	handler = requestIDMiddleware(handler)
	handler = otelhttp.NewHandler(handler, "wikiagent.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http.server.start", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http.server.shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is done, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
