package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/server"
	"github.com/GriffinCanCode/methodprobe/internal/render"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/GriffinCanCode/methodprobe/internal/shared/id"
	"github.com/GriffinCanCode/methodprobe/internal/sink"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
)

// ErrNotStarted is returned by Shutdown before Start.
var ErrNotStarted = errors.New("probe: engine not started")

// Options tune an Engine beyond what Config carries.
type Options struct {
	// ConfigPath is reloaded on change when Watch is set.
	ConfigPath string
	Watch      bool

	// Logger receives diagnostics. Nil builds one from Config.Logging. Its
	// level follows Logging.Level on every config change.
	Logger *logging.Logger
	// Console receives rendered output in console mode. Nil means stdout.
	Console io.Writer
	// Types registers argument types for exact snapshot round trips.
	Types []any
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Engine owns every long-lived component: the live config, the two
// background queues, the log sinks and the optional status server.
type Engine struct {
	store   *config.Store
	logger  *logging.Logger
	metrics *monitoring.Metrics
	stats   *render.Stats

	codec     *serialization.Sonic
	snapshots *snapshot.Writer
	renderer  *render.Worker
	file      *sink.File
	hub       *sink.Hub
	manager   *tree.Manager
	server    *server.Server

	opts        Options
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// New wires an Engine from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	store, err := config.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("probe: invalid config: %w", err)
	}
	return NewWithStore(store, opts)
}

// NewWithStore wires an Engine around an existing store.
func NewWithStore(store *config.Store, opts Options) (*Engine, error) {
	cfg := store.Load()

	logger := opts.Logger
	if logger == nil {
		logger = logging.FromEnv(cfg.Logging.Level, cfg.Logging.Development, nil)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		store:   store,
		logger:  logger.Named("probe"),
		metrics: monitoring.NewMetrics(),
		stats:   render.NewStats(render.DefaultWindow),
		opts:    opts,
	}
	store.OnChange(func(c *config.Compiled) {
		if err := logger.SetLevel(c.Logging.Level); err != nil {
			e.logger.Warn("ignoring log level", zap.String("level", c.Logging.Level), zap.Error(err))
		}
	})

	codecOpts := []serialization.Option{
		serialization.WithMaxSize(cfg.Snapshot.MaxObjectSize),
		serialization.WithCompression(cfg.Snapshot.CompressAbove),
		serialization.WithLogger(logger),
		serialization.WithFailureHook(e.metrics.ObserveSerializationFailure),
		serialization.WithTypes(append([]any{errdigest.Digest{}}, opts.Types...)...),
	}
	codec, err := serialization.NewSonic(codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("probe: create codec: %w", err)
	}
	e.codec = codec

	e.snapshots = snapshot.NewWriter(snapshot.WriterConfig{
		Dir:           cfg.Snapshot.Dir,
		QueueSize:     cfg.Snapshot.QueueSize,
		RetentionDays: cfg.Snapshot.RetentionDays,
		Breaker: resilience.Settings{
			OnStateChange: func(name string, from, to resilience.State) {
				e.logger.Warn("snapshot breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		},
		Logger:   logger,
		Observer: e.metrics,
		Now:      now,
	})

	out, err := e.buildSink(cfg, now)
	if err != nil {
		codec.Close()
		return nil, err
	}

	e.renderer = render.NewWorker(render.Config{
		Sink:      out,
		QueueSize: cfg.Output.RenderQueueSize,
		Stats:     e.stats,
		Logger:    logger,
		Observer:  e.metrics,
	})

	e.manager = tree.NewManager(tree.Options{
		Store:      store,
		Correlator: id.NewCorrelatorWithClock(now),
		TraceIDs:   id.Default(),
		Capturer:   snapshot.NewCapturer(e.snapshots, codec),
		Submitter:  e.renderer,
		Observer:   e.metrics,
		Logger:     logger,
		Clock:      now,
	})

	if cfg.Server.Enabled {
		e.server = server.New(server.Deps{
			Store:   store,
			Metrics: e.metrics,
			Stats:   e.stats,
			Hub:     e.hub,
			Manager: e.manager,
			Queues:  e.Queues,
			Logger:  logger,
		})
	}
	return e, nil
}

// buildSink assembles the output sinks: console or file, plus the websocket
// hub when the status server is on.
func (e *Engine) buildSink(cfg *config.Compiled, now func() time.Time) (sink.Sink, error) {
	var primary sink.Sink
	switch cfg.Output.Mode {
	case config.OutputFile:
		f, err := sink.NewFile(sink.FileConfig{
			Dir:           cfg.Output.Dir,
			BufferSize:    cfg.Output.BufferSize,
			FlushInterval: time.Duration(cfg.Output.FlushIntervalMs) * time.Millisecond,
			Logger:        e.logger,
			Observer:      e.metrics,
			Now:           now,
		})
		if err != nil {
			return nil, fmt.Errorf("probe: open log file sink: %w", err)
		}
		e.file = f
		primary = f
	default:
		primary = sink.NewConsole(e.opts.Console)
	}

	if !cfg.Server.Enabled {
		return primary, nil
	}
	e.hub = sink.NewHub(e.logger)
	return sink.NewMulti(primary, e.hub), nil
}

// Start launches the background workers, the status server and the config
// watcher.
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	cfg := e.store.Load()

	e.snapshots.Start()
	e.renderer.Start()

	if e.server != nil {
		if err := e.server.Start(cfg.Server.Addr); err != nil {
			return err
		}
	}

	if e.opts.Watch && e.opts.ConfigPath != "" {
		w, err := config.NewWatcher(e.store, e.opts.ConfigPath, e.logger)
		if err != nil {
			return fmt.Errorf("probe: watch config: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		e.watchCancel = cancel
		e.watchDone = make(chan struct{})
		go func() {
			defer close(e.watchDone)
			if err := w.Run(ctx); err != nil {
				e.logger.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	e.logger.Info("probe started",
		zap.Strings("entry_methods", cfg.Tree.EntryMethods),
		zap.String("output", cfg.Output.Mode),
		zap.Bool("snapshots", cfg.Snapshot.Enabled),
		zap.Bool("server", e.server != nil),
	)
	return nil
}

// Tracker returns a new tracker for one goroutine.
func (e *Engine) Tracker(name string) *tree.Tracker { return e.manager.NewTracker(name) }

// Manager exposes the tree manager, e.g. for tracing middleware.
func (e *Engine) Manager() *tree.Manager { return e.manager }

// Store exposes the live configuration.
func (e *Engine) Store() *config.Store { return e.store }

// Metrics exposes the Prometheus collectors.
func (e *Engine) Metrics() *monitoring.Metrics { return e.metrics }

// Stats exposes per-entry duration statistics.
func (e *Engine) Stats() *render.Stats { return e.stats }

// Codec exposes the argument codec.
func (e *Engine) Codec() serialization.Codec { return e.codec }

// ServerAddr returns the status server address, or "" when disabled.
func (e *Engine) ServerAddr() string {
	if e.server == nil {
		return ""
	}
	return e.server.Addr()
}

// Queues reports the depth of every background queue.
func (e *Engine) Queues() []server.QueueStatus {
	queues := []server.QueueStatus{
		{Name: render.QueueName, Pending: e.renderer.Pending(), Dropped: e.renderer.Dropped()},
		{Name: snapshot.QueueName, Pending: e.snapshots.Pending(), Dropped: e.snapshots.Dropped()},
	}
	if e.file != nil {
		queues = append(queues, server.QueueStatus{Name: sink.QueueName, Pending: e.file.Pending()})
	}
	return queues
}

// Shutdown drains in two phases. The render and snapshot queues stop
// accepting and drain within the configured timeout (or ctx's deadline,
// whichever is sooner); then the file sink, the hub and the server close.
// Work still queued past the deadline is discarded.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	e.stopOnce.Do(func() {
		e.stopErr = e.shutdown(ctx)
	})
	return e.stopErr
}

func (e *Engine) shutdown(ctx context.Context) error {
	timeout := time.Duration(e.store.Load().Shutdown.TimeoutMs) * time.Millisecond
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	remaining := func() time.Duration {
		if left := time.Until(deadline); left > 0 {
			return left
		}
		return 0
	}

	e.logger.Info("probe shutting down", zap.Duration("timeout", remaining()))

	var errs []error
	if err := e.renderer.Stop(remaining()); err != nil {
		errs = append(errs, err)
	}
	if err := e.snapshots.Stop(remaining()); err != nil {
		errs = append(errs, err)
	}

	if e.file != nil {
		if err := e.file.Shutdown(remaining()); err != nil {
			errs = append(errs, err)
		}
	}
	if e.hub != nil {
		if err := e.hub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.server != nil {
		sctx, cancel := context.WithDeadline(context.Background(), deadline)
		if err := e.server.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if e.watchCancel != nil {
		e.watchCancel()
		<-e.watchDone
	}
	e.codec.Close()

	err := errors.Join(errs...)
	if err != nil {
		e.logger.Warn("probe shutdown incomplete", zap.Error(err))
	}
	_ = e.logger.Sync()
	return err
}
