package render

import (
	"context"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/sink"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
	"github.com/GriffinCanCode/methodprobe/internal/worker"
	"go.uber.org/zap"
)

// QueueName labels the render queue in metrics.
const QueueName = "render"

// DefaultQueueSize matches the default render queue capacity.
const DefaultQueueSize = 1000

// Config configures a Worker.
type Config struct {
	Sink      sink.Sink
	QueueSize int
	Stats     *Stats
	Logger    *logging.Logger
	Observer  worker.Observer
}

// item is either a trace or a flat line.
type item struct {
	trace *tree.Trace
	line  tree.FlatLine
}

// Worker renders traces and flat lines on its own goroutine and writes
// them to a sink. It implements tree.Submitter.
type Worker struct {
	queue    *worker.Worker[item]
	sink     sink.Sink
	stats    *Stats
	logger   *logging.Logger
	throttle *logging.Throttle
}

// NewWorker creates a Worker. Call Start to begin rendering.
func NewWorker(cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.NewConsole(nil)
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats(DefaultWindow)
	}

	w := &Worker{
		sink:     cfg.Sink,
		stats:    cfg.Stats,
		logger:   logging.OrNop(cfg.Logger).Named("render"),
		throttle: logging.NewThrottle(5*time.Second, 1),
	}
	w.queue = worker.New(worker.Config{
		Name:     QueueName,
		Capacity: cfg.QueueSize,
		Logger:   cfg.Logger,
		Observer: cfg.Observer,
	}, w.handle)
	return w
}

// Start begins rendering.
func (w *Worker) Start() { w.queue.Start() }

// Stop drains the queue within timeout.
func (w *Worker) Stop(timeout time.Duration) error { return w.queue.Stop(timeout) }

// SubmitTrace queues a closed trace.
func (w *Worker) SubmitTrace(t *tree.Trace) bool {
	return w.queue.Submit(item{trace: t})
}

// SubmitFlat queues a flat line.
func (w *Worker) SubmitFlat(line tree.FlatLine) bool {
	return w.queue.Submit(item{line: line})
}

// Stats returns the duration statistics fed by rendered traces.
func (w *Worker) Stats() *Stats { return w.stats }

// Pending returns the number of queued items.
func (w *Worker) Pending() int { return w.queue.Len() }

// Dropped returns the number of items evicted by overflow.
func (w *Worker) Dropped() int64 { return w.queue.Dropped() }

func (w *Worker) handle(_ context.Context, it item) {
	var text string
	if it.trace != nil {
		text = Trace(it.trace)
		w.stats.Add(it.trace.Entry(), it.trace.Duration())
	} else {
		text = Flat(it.line)
	}

	if err := w.sink.Write(text); err != nil {
		if ok, suppressed := w.throttle.Allow(); ok {
			w.logger.Warn("Failed to write rendered output",
				zap.Error(err),
				zap.Int64("suppressed", suppressed))
		}
	}
}
