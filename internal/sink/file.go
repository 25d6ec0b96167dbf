package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/worker"
	"go.uber.org/zap"
)

// QueueName labels the file sink queue in metrics.
const QueueName = "logfile"

const (
	filePrefix = "method-probe-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"

	batchSize = 100
)

// Defaults for FileConfig.
const (
	DefaultBufferSize    = 10000
	DefaultFlushInterval = time.Second
	DefaultCloseTimeout  = 5 * time.Second
)

// FileName returns the log file name for the given day.
func FileName(day time.Time) string {
	return filePrefix + day.UTC().Format(dayLayout) + fileSuffix
}

// FileConfig configures a File sink.
type FileConfig struct {
	Dir           string
	BufferSize    int
	FlushInterval time.Duration
	Logger        *logging.Logger
	Observer      worker.Observer
	// Now overrides time.Now, for tests.
	Now func() time.Time
}

// File appends text to a log file per UTC day. Writes are queued and
// written in batches by a background goroutine; when the queue is full the
// oldest text is dropped. One lock guards the open file across writes,
// flushes and day rotation.
type File struct {
	dir    string
	now    func() time.Time
	logger *logging.Logger
	queue  *worker.Worker[string]

	mu      sync.Mutex
	day     string
	file    *os.File
	buf     *bufio.Writer
	pending int

	flushEvery time.Duration
	stop       chan struct{}
	stopped    chan struct{}
	closed     atomic.Bool
}

// NewFile creates the log directory and starts the writer.
func NewFile(cfg FileConfig) (*File, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("sink: file dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create log dir: %w", err)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	f := &File{
		dir:        cfg.Dir,
		now:        cfg.Now,
		logger:     logging.OrNop(cfg.Logger).Named("logfile"),
		flushEvery: cfg.FlushInterval,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	f.queue = worker.New(worker.Config{
		Name:     QueueName,
		Capacity: cfg.BufferSize,
		Logger:   cfg.Logger,
		Observer: cfg.Observer,
	}, f.handle)

	f.queue.Start()
	go f.flushLoop()
	return f, nil
}

// Write queues text. It never blocks.
func (f *File) Write(text string) error {
	if f.closed.Load() || !f.queue.Submit(text) {
		return ErrClosed
	}
	return nil
}

// Path returns the file currently written to, or "" before the first write.
func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ""
	}
	return f.file.Name()
}

// Pending returns the number of queued writes.
func (f *File) Pending() int { return f.queue.Len() }

// Flush writes buffered text to disk.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

// Close drains the queue within DefaultCloseTimeout and closes the file.
func (f *File) Close() error {
	return f.Shutdown(DefaultCloseTimeout)
}

// Shutdown stops accepting writes, drains what is queued within timeout
// and closes the file. Text still queued after the timeout is discarded.
func (f *File) Shutdown(timeout time.Duration) error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	stopErr := f.queue.Stop(timeout)
	close(f.stop)
	<-f.stopped

	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.closeLocked()
	if stopErr != nil {
		return stopErr
	}
	return err
}

func (f *File) handle(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rotateLocked(); err != nil {
		f.logger.Error("Failed to open log file", zap.Error(err))
		return
	}
	if _, err := f.buf.WriteString(text); err != nil {
		f.logger.Error("Failed to write log file", zap.Error(err))
		_ = f.closeLocked()
		return
	}
	f.pending++
	if f.pending >= batchSize {
		if err := f.flushLocked(); err != nil {
			f.logger.Error("Failed to flush log file", zap.Error(err))
		}
	}
}

func (f *File) flushLoop() {
	defer close(f.stopped)

	ticker := time.NewTicker(f.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			if err := f.Flush(); err != nil {
				f.logger.Error("Failed to flush log file", zap.Error(err))
			}
		}
	}
}

// rotateLocked opens the file for today, closing yesterday's.
func (f *File) rotateLocked() error {
	day := f.now().UTC().Format(dayLayout)
	if f.file != nil && day == f.day {
		return nil
	}
	if err := f.closeLocked(); err != nil {
		f.logger.Warn("Failed to close previous log file", zap.Error(err))
	}

	path := filepath.Join(f.dir, filePrefix+day+fileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	f.day = day
	f.file = file
	f.buf = bufio.NewWriterSize(file, 8<<10)
	return nil
}

func (f *File) flushLocked() error {
	if f.buf == nil || f.pending == 0 {
		return nil
	}
	f.pending = 0
	return f.buf.Flush()
}

func (f *File) closeLocked() error {
	if f.file == nil {
		return nil
	}
	err := f.flushLocked()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	f.file = nil
	f.buf = nil
	f.pending = 0
	return err
}
