// Package worker provides the bounded single-consumer queue behind snapshot
// persistence and trace rendering.
//
// Submission never blocks: when the queue is full the oldest waiting item is
// evicted to make room. Items are handled one at a time in FIFO order by a
// single goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ErrStopTimeout is returned by Stop when the queue did not drain in time.
var ErrStopTimeout = errors.New("worker: stop timed out, remaining items discarded")

// DefaultCapacity is used when Config.Capacity is not positive.
const DefaultCapacity = 500

// Handler processes one item. ctx is cancelled when a stop times out.
type Handler[T any] func(ctx context.Context, item T)

// Observer receives queue events, typically *monitoring.Metrics.
type Observer interface {
	ObserveSubmit(queue string, depth int)
	ObserveDrop(queue, reason string, n int)
	ObserveDone(queue string, depth int, panicked bool)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmit(string, int)       {}
func (nopObserver) ObserveDrop(string, string, int) {}
func (nopObserver) ObserveDone(string, int, bool)   {}

// Config configures a Worker
type Config struct {
	Name     string
	Capacity int
	Logger   *logging.Logger
	Observer Observer
}

// Worker is a bounded drop-oldest queue with one consumer goroutine.
type Worker[T any] struct {
	name     string
	items    chan T
	handle   Handler[T]
	logger   *logging.Logger
	observer Observer
	throttle *logging.Throttle

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	done   chan struct{}

	accepting atomic.Bool
	started   atomic.Bool
	stopOnce  sync.Once

	dropped   atomic.Int64
	processed atomic.Int64
}

// New creates a worker. Call Start to begin consuming.
func New[T any](cfg Config, handle Handler[T]) *Worker[T] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "worker"
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker[T]{
		name:     cfg.Name,
		items:    make(chan T, cfg.Capacity),
		handle:   handle,
		logger:   logging.OrNop(cfg.Logger).Named(cfg.Name),
		observer: cfg.Observer,
		throttle: logging.NewThrottle(5*time.Second, 1),
		ctx:      ctx,
		cancel:   cancel,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.accepting.Store(true)
	return w
}

// Start launches the consumer goroutine. Calling it twice is a no-op.
func (w *Worker[T]) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Submit enqueues item, evicting the oldest waiting item if the queue is
// full. It returns false only when the worker no longer accepts work.
func (w *Worker[T]) Submit(item T) bool {
	if !w.accepting.Load() {
		return false
	}

	for {
		select {
		case w.items <- item:
			w.observer.ObserveSubmit(w.name, len(w.items))
			return true
		default:
		}

		select {
		case <-w.items:
			w.dropped.Add(1)
			w.observer.ObserveDrop(w.name, "overflow", 1)
			if ok, suppressed := w.throttle.Allow(); ok {
				w.logger.Warn("queue full, dropped oldest item",
					zap.Int("capacity", cap(w.items)),
					zap.Int64("suppressed", suppressed),
					zap.Int64("dropped_total", w.dropped.Load()),
				)
			}
		default:
		}
	}
}

// Len returns the number of waiting items
func (w *Worker[T]) Len() int { return len(w.items) }

// Cap returns the queue capacity
func (w *Worker[T]) Cap() int { return cap(w.items) }

// Dropped returns how many items were evicted or discarded
func (w *Worker[T]) Dropped() int64 { return w.dropped.Load() }

// Processed returns how many items reached the handler
func (w *Worker[T]) Processed() int64 { return w.processed.Load() }

// Stop refuses new submissions, lets the consumer drain what is queued and
// waits up to timeout. If the deadline passes, the handler context is
// cancelled, whatever is still queued is discarded and ErrStopTimeout is
// returned.
func (w *Worker[T]) Stop(timeout time.Duration) error {
	var err error
	w.stopOnce.Do(func() {
		w.accepting.Store(false)
		close(w.quit)

		if !w.started.Load() {
			w.cancel()
			w.discard()
			return
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-w.done:
			w.cancel()
		case <-timer.C:
			w.cancel()
			err = fmt.Errorf("%s: %w", w.name, ErrStopTimeout)
			w.logger.Warn("stop timed out", zap.Duration("timeout", timeout), zap.Int("pending", len(w.items)))
		}
	})
	return err
}

func (w *Worker[T]) run() {
	defer close(w.done)

	for {
		if w.ctx.Err() != nil {
			w.discard()
			return
		}
		select {
		case item := <-w.items:
			w.process(item)
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *Worker[T]) drain() {
	for {
		if w.ctx.Err() != nil {
			w.discard()
			return
		}
		select {
		case item := <-w.items:
			w.process(item)
		default:
			return
		}
	}
}

func (w *Worker[T]) discard() {
	n := 0
	for {
		select {
		case <-w.items:
			n++
		default:
			if n > 0 {
				w.dropped.Add(int64(n))
				w.observer.ObserveDrop(w.name, "shutdown", n)
				w.logger.Warn("discarded queued items at shutdown", zap.Int("count", n))
			}
			return
		}
	}
}

func (w *Worker[T]) process(item T) {
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			w.logger.Error("handler panic", zap.Any("panic", r), zap.Stack("stack"))
		}
		w.processed.Add(1)
		w.observer.ObserveDone(w.name, len(w.items), panicked)
	}()

	w.handle(w.ctx, item)
}
