package tree

import (
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/shared/id"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
	"github.com/google/uuid"
)

// Trace outcomes reported to the Observer.
const (
	OutcomeRendered  = "rendered"
	OutcomeSkipped   = "skipped"
	OutcomeAbandoned = "abandoned"
	OutcomeDropped   = "dropped"
)

// Capturer persists a snapshot of a finished invocation.
type Capturer interface {
	Capture(inv snapshot.Invocation, opts snapshot.CaptureOptions) bool
}

// Submitter receives completed traces and flat lines for rendering. Both
// calls must not block.
type Submitter interface {
	SubmitTrace(t *Trace) bool
	SubmitFlat(line FlatLine) bool
}

// Observer receives per-trace and per-line counters.
type Observer interface {
	ObserveTrace(entry, outcome string, duration time.Duration)
	ObserveFlatLine()
}

type nopObserver struct{}

func (nopObserver) ObserveTrace(string, string, time.Duration) {}
func (nopObserver) ObserveFlatLine()                           {}

// Options configures a Manager. Store is required; everything else has a
// usable default.
type Options struct {
	Store      *config.Store
	Correlator *id.Correlator
	TraceIDs   *id.Generator
	Capturer   Capturer
	Submitter  Submitter
	Observer   Observer
	Logger     *logging.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Manager hands out Trackers and holds what they share: live configuration,
// the correlation counter and the two background queues.
type Manager struct {
	store      *config.Store
	correlator *id.Correlator
	traceIDs   *id.Generator
	capturer   Capturer
	submitter  Submitter
	observer   Observer
	logger     *logging.Logger
	now        func() time.Time
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		store:      opts.Store,
		correlator: opts.Correlator,
		traceIDs:   opts.TraceIDs,
		capturer:   opts.Capturer,
		submitter:  opts.Submitter,
		observer:   opts.Observer,
		logger:     logging.OrNop(opts.Logger).Named("tree"),
		now:        opts.Clock,
	}
	if m.correlator == nil {
		m.correlator = id.DefaultCorrelator()
	}
	if m.traceIDs == nil {
		m.traceIDs = id.Default()
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Config returns the configuration currently in effect.
func (m *Manager) Config() *config.Compiled { return m.store.Load() }

// NewTracker creates a Tracker for one goroutine. name identifies it in
// rendered output; an empty name gets a generated one.
func (m *Manager) NewTracker(name string) *Tracker {
	if name == "" {
		name = "goroutine-" + uuid.NewString()[:8]
	}
	return &Tracker{m: m, name: name, ids: m.traceIDs.NewSource()}
}

func (m *Manager) capture(cfg *config.Compiled, inv snapshot.Invocation) {
	if m.capturer == nil {
		return
	}
	opts := snapshot.CaptureOptions{
		Sync:       cfg.Snapshot.SerializeMode != config.SerializeAsync,
		StackDepth: cfg.Exception.StackDepth,
	}
	if !m.capturer.Capture(inv, opts) {
		m.logger.Debug("Snapshot not queued")
	}
}

func (m *Manager) submitTrace(t *Trace) {
	outcome := OutcomeRendered
	if m.submitter == nil || !m.submitter.SubmitTrace(t) {
		outcome = OutcomeDropped
	}
	m.observer.ObserveTrace(t.Entry(), outcome, t.Duration())
}

func (m *Manager) submitFlat(line FlatLine) {
	if m.submitter == nil || !m.submitter.SubmitFlat(line) {
		return
	}
	m.observer.ObserveFlatLine()
}
