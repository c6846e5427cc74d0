package observer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
)

// DefaultBufferSize is the AsyncSink queue capacity.
const DefaultBufferSize = 256

// AsyncOptions configures an AsyncSink.
type AsyncOptions struct {
	BufferSize int
	Logger     logging.Logger
}

// AsyncSink delivers events to an inner sink from a single background
// goroutine. Emit never blocks; events are dropped when the queue is full or
// the sink is closed. Delivery order matches Emit order.
type AsyncSink struct {
	inner  core.EventSink
	logger logging.Logger
	queue  chan core.Event

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsyncSink starts the delivery goroutine. Call Close to flush and stop it.
func NewAsyncSink(inner core.EventSink, optFns ...func(o *AsyncOptions)) *AsyncSink {
	opts := AsyncOptions{BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	s := &AsyncSink{
		inner:  inner,
		logger: logging.Ensure(opts.Logger),
		queue:  make(chan core.Event, opts.BufferSize),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// Emit implements core.EventSink.
func (s *AsyncSink) Emit(_ context.Context, e core.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("observer.event.dropped", "type", string(e.Type), "turn", e.TurnID, "dropped_total", n)
		}
	}
}

// Dropped returns the number of events discarded so far.
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Close stops accepting events and waits until queued events are delivered
// or ctx is done.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	ctx := context.Background()
	for e := range s.queue {
		s.deliver(ctx, e)
	}
}

func (s *AsyncSink) deliver(ctx context.Context, e core.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer.sink.panic", "type", string(e.Type), "recover", r)
		}
	}()
	s.inner.Emit(ctx, e)
}

var _ core.EventSink = (*AsyncSink)(nil)
