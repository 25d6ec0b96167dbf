package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/GriffinCanCode/methodprobe/internal/worker"
	"go.uber.org/zap"
)

// QueueName labels the persistence queue in logs and metrics.
const QueueName = "snapshot"

// Observer receives queue and persistence events.
type Observer interface {
	worker.Observer
	ObserveSnapshot(outcome string, size int)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmit(string, int)       {}
func (nopObserver) ObserveDrop(string, string, int) {}
func (nopObserver) ObserveDone(string, int, bool)   {}
func (nopObserver) ObserveSnapshot(string, int)     {}

// WriterConfig configures a Writer
type WriterConfig struct {
	Dir           string
	QueueSize     int
	RetentionDays int
	Breaker       resilience.Settings
	Logger        *logging.Logger
	Observer      Observer
	Now           func() time.Time
}

// job is one queued snapshot. In async mode the argument and error values
// travel raw and are encoded by the worker.
type job struct {
	snap  *Snapshot
	codec serialization.Codec
	args  []any
	err   error
	depth int
}

// Writer persists snapshots from a bounded queue on one background goroutine.
type Writer struct {
	dir       string
	retention Retention
	worker    *worker.Worker[job]
	breaker   *resilience.Breaker
	logger    *logging.Logger
	observer  Observer
	throttle  *logging.Throttle
	now       func() time.Time

	seq     atomic.Uint32
	lastDay string // worker goroutine only
}

// NewWriter creates a Writer. Call Start before submitting.
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := logging.OrNop(cfg.Logger).Named("snapshot")

	w := &Writer{
		dir:       cfg.Dir,
		retention: Retention{Dir: cfg.Dir, Days: cfg.RetentionDays},
		breaker:   resilience.New("snapshot-writer", cfg.Breaker),
		logger:    logger,
		observer:  cfg.Observer,
		throttle:  logging.NewThrottle(5*time.Second, 3),
		now:       cfg.Now,
	}
	w.worker = worker.New(worker.Config{
		Name:     QueueName,
		Capacity: cfg.QueueSize,
		Logger:   logger,
		Observer: cfg.Observer,
	}, w.handle)
	return w
}

// Start launches the background worker.
func (w *Writer) Start() { w.worker.Start() }

// Stop drains the queue for up to timeout.
func (w *Writer) Stop(timeout time.Duration) error { return w.worker.Stop(timeout) }

// Submit queues a fully encoded snapshot. It never blocks.
func (w *Writer) Submit(s *Snapshot) bool {
	return w.worker.Submit(job{snap: s})
}

// Pending returns the number of queued snapshots
func (w *Writer) Pending() int { return w.worker.Len() }

// Dropped returns how many snapshots were evicted or discarded
func (w *Writer) Dropped() int64 { return w.worker.Dropped() }

// Dir returns the base snapshot directory
func (w *Writer) Dir() string { return w.dir }

// Path returns the destination file of s. Snapshots without a usable
// correlation ID get a time-based name with a rolling sequence.
func (w *Writer) Path(s *Snapshot) string {
	name := s.CorrelationID
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		t := s.Time()
		name = fmt.Sprintf("%s-%03d-%04d", t.Format("15-04-05"), t.Nanosecond()/int(time.Millisecond), w.seq.Add(1)%10000)
	}
	return filepath.Join(w.dir, s.Day(), name+Ext)
}

func (w *Writer) handle(_ context.Context, j job) {
	s := j.snap
	if j.codec != nil {
		s.Args = serialization.EncodeAll(j.codec, j.args)
		s.Error = encodeError(j.codec, j.err, j.depth)
	}

	w.sweepOnNewDay()

	path := w.Path(s)
	data := Marshal(s)
	err := w.breaker.Do(func() error {
		return writeAtomic(path, data)
	})

	switch {
	case err == nil:
		w.observer.ObserveSnapshot("written", len(data))
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		w.observer.ObserveSnapshot("circuit_open", 0)
		if ok, suppressed := w.throttle.Allow(); ok {
			w.logger.Warn("snapshot dropped, writer circuit open",
				zap.String("correlation_id", s.CorrelationID),
				zap.Int64("suppressed", suppressed),
			)
		}
	default:
		w.observer.ObserveSnapshot("io", 0)
		if ok, suppressed := w.throttle.Allow(); ok {
			w.logger.Error("failed to write snapshot",
				zap.String("path", path),
				zap.Int64("suppressed", suppressed),
				zap.Error(err),
			)
		}
	}
}

func (w *Writer) sweepOnNewDay() {
	today := w.now().UTC().Format(dayLayout)
	if today == w.lastDay {
		return
	}
	w.lastDay = today

	removed, err := w.retention.Sweep(w.now())
	if err != nil {
		w.logger.Warn("retention sweep failed", zap.Error(err))
	}
	if len(removed) > 0 {
		w.logger.Info("removed expired snapshot days", zap.Strings("dirs", removed))
	}
}

// writeAtomic writes data next to path and renames it into place so readers
// never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create day dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
