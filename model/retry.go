package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
)

// RetryOptions configures WithRetry and WithEmbeddingRetry.
type RetryOptions struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt. It doubles per
	// further attempt and receives up to 50% jitter.
	BaseDelay time.Duration
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	Logger  logging.Logger
}

func defaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
		Timeout:     60 * time.Second,
	}
}

func newRetryOptions(optFns []func(o *RetryOptions)) RetryOptions {
	opts := defaultRetryOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	opts.Logger = logging.Ensure(opts.Logger)
	return opts
}

type retryModel struct {
	inner Model
	opts  RetryOptions
}

// WithRetry wraps m so that a transient failure is retried once. Once the
// attempts are spent, the returned error wraps core.ErrProviderUnavailable
// (and core.ErrRateLimited for 429 responses).
//
//	llm := model.WithRetry(openai.NewModel())
//	llm := model.WithRetry(anthropic.NewModel(), func(o *model.RetryOptions) { o.Timeout = 30 * time.Second })
func WithRetry(m Model, optFns ...func(o *RetryOptions)) Model {
	return &retryModel{inner: m, opts: newRetryOptions(optFns)}
}

func (r *retryModel) Info() Info { return r.inner.Info() }

func (r *retryModel) Generate(ctx context.Context, req Request) (Response, error) {
	info := r.inner.Info()
	return retryCall(ctx, r.opts, info.Provider, info.Name, func(ctx context.Context) (Response, error) {
		return r.inner.Generate(ctx, req)
	})
}

type retryEmbedder struct {
	inner Embedder
	opts  RetryOptions
}

// WithEmbeddingRetry wraps e with the same policy as WithRetry.
func WithEmbeddingRetry(e Embedder, optFns ...func(o *RetryOptions)) Embedder {
	return &retryEmbedder{inner: e, opts: newRetryOptions(optFns)}
}

func (r *retryEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *retryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return retryCall(ctx, r.opts, "embedding", "", func(ctx context.Context) ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
}

// retryCall runs fn up to opts.MaxAttempts times, sleeping between transient
// failures. A cancelled parent context is returned as is.
func retryCall[T any](ctx context.Context, opts RetryOptions, name, modelName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	start := time.Now()
	for i := 0; i < opts.MaxAttempts; i++ {
		result, err := attempt(ctx, opts.Timeout, fn)
		if err == nil {
			logging.ProviderCall(opts.Logger, name, modelName, time.Since(start), nil)
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		last = err
		if !isTransient(err) {
			break
		}
		if i < opts.MaxAttempts-1 {
			opts.Logger.Warn("provider.retry",
				"provider", name,
				"status", statusOf(err),
				"attempt", i+1,
				"max_attempts", opts.MaxAttempts,
				"error", err.Error())
			timer := time.NewTimer(retryDelay(opts.BaseDelay, i, err))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	logging.ProviderCall(opts.Logger, name, modelName, time.Since(start), last)
	return zero, unavailable(name, last)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func unavailable(name string, cause error) error {
	if statusOf(cause) == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %w: %w", name, core.ErrProviderUnavailable, core.ErrRateLimited, cause)
	}
	return fmt.Errorf("%s: %w: %w", name, core.ErrProviderUnavailable, cause)
}

// isTransient reports whether err is a retryable provider failure: a
// transient HTTP status, a network error or an attempt timeout.
func isTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// retryDelay computes the delay before retry attempt i, using exponential
// backoff as a floor and the server's Retry-After value as a minimum.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns base * 2^i plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	if base <= 0 {
		return 0
	}
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

var (
	_ Model    = (*retryModel)(nil)
	_ Embedder = (*retryEmbedder)(nil)
)
