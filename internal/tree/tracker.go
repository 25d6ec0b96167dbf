package tree

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/shared/id"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
	"go.uber.org/zap"
)

// Tracker holds the trace state of one goroutine. It is either idle (no
// root) or active (a root plus a non-empty stack of open nodes).
//
// A Tracker is not safe for concurrent use. Every OnEnter must be paired
// with exactly one OnExit for the same class and method, whether or not
// OnEnter reported the call as tracked.
type Tracker struct {
	m    *Manager
	name string
	ids  *id.Source

	root     *CallNode
	stack    []*CallNode
	hasError bool

	flat []flatFrame
}

// flatFrame times an invocation selected for flat logging.
type flatFrame struct {
	class  string
	method string
	start  time.Time
	args   []any
}

// Name identifies the tracker in rendered output and snapshots.
func (t *Tracker) Name() string { return t.name }

// InTree reports whether a trace is active.
func (t *Tracker) InTree() bool { return t.root != nil }

// Depth returns the number of open tree nodes.
func (t *Tracker) Depth() int { return len(t.stack) }

// Current returns the innermost open node, or nil when idle.
func (t *Tracker) Current() *CallNode {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// Clear drops all state, abandoning any active trace.
func (t *Tracker) Clear() {
	if t.root != nil {
		t.abandon("cleared")
	}
	clear(t.flat)
	t.flat = t.flat[:0]
}

// OnEnter records entry into class.method and reports whether the call
// joined a call tree.
func (t *Tracker) OnEnter(class, method string, args ...any) (tracked bool) {
	defer t.guard("enter", class, method)

	cfg := t.m.store.Load()
	now := t.m.now()

	if cfg.FlatSelects(class, method) {
		t.flat = append(t.flat, flatFrame{class: class, method: method, start: now, args: args})
	}

	if !cfg.Tree.Enabled {
		if t.root != nil {
			t.abandon("tree disabled")
		}
		return false
	}

	isEntry := cfg.IsEntry(class + "." + method)
	var node *CallNode
	switch {
	case isEntry:
		if t.root != nil {
			t.abandon("entry re-entered")
		}
		node = newNode(class, method, now, nil)
		t.root = node
	case t.root == nil:
		return false
	case !cfg.IncludeInTree(class):
		return false
	default:
		node = newNode(class, method, now, t.Current())
	}
	t.stack = append(t.stack, node)

	if cfg.Snapshot.Enabled && (cfg.Tree.SnapshotProbeAll || isEntry) {
		node.args = args
		node.correlationID = t.m.correlator.Next()
	}
	return true
}

// OnExit records the exit of class.method with the error it returned, if
// any.
func (t *Tracker) OnExit(class, method string, err error) {
	defer t.guard("exit", class, method)

	cfg := t.m.store.Load()
	now := t.m.now()
	captured := err != nil && cfg.CapturesError(err)
	if !captured {
		err = nil
	}

	t.exitTree(cfg, class, method, err, now)
	t.exitFlat(cfg, class, method, err, now)
}

// Do runs fn between OnEnter and OnExit. A panic in fn is recorded as the
// call's error and re-raised.
func (t *Tracker) Do(class, method string, fn func() error, args ...any) (err error) {
	t.OnEnter(class, method, args...)
	defer func() {
		if r := recover(); r != nil {
			t.OnExit(class, method, errdigest.FromPanic(r))
			panic(r)
		}
		t.OnExit(class, method, err)
	}()
	return fn()
}

func (t *Tracker) exitTree(cfg *config.Compiled, class, method string, err error, now time.Time) {
	if t.root == nil {
		return
	}
	if !cfg.Tree.Enabled {
		t.abandon("tree disabled")
		return
	}

	top := t.Current()
	if top.class != class || top.method != method {
		// Exits of untracked calls land here too; only a signature that is
		// open deeper in the stack means frames were skipped.
		if t.open(class, method) {
			t.abandon("exit mismatch")
		}
		return
	}

	top.close(now)
	if err != nil {
		top.err = err
		t.hasError = true
	}

	if top.correlationID != "" && cfg.Snapshot.Enabled && cfg.TreePolicy.Fires(top.Duration(), err != nil) {
		t.m.capture(cfg, snapshot.Invocation{
			CorrelationID: top.correlationID.String(),
			Class:         top.class,
			Method:        top.method,
			Thread:        t.name,
			Duration:      top.Duration(),
			Args:          top.args,
			Err:           err,
		})
	}

	t.stack[len(t.stack)-1] = nil
	t.stack = t.stack[:len(t.stack)-1]
	if len(t.stack) > 0 {
		return
	}

	root, hasError := t.root, t.hasError
	t.reset()

	if !cfg.TreePolicy.Fires(root.Duration(), hasError) {
		t.m.observer.ObserveTrace(root.Signature(), OutcomeSkipped, root.Duration())
		return
	}
	t.m.submitTrace(&Trace{
		ID:       t.ids.Next(now),
		Thread:   t.name,
		Root:     root,
		Err:      root.err,
		HasError: hasError,
	})
}

func (t *Tracker) exitFlat(cfg *config.Compiled, class, method string, err error, now time.Time) {
	i := len(t.flat) - 1
	for ; i >= 0; i-- {
		if t.flat[i].class == class && t.flat[i].method == method {
			break
		}
	}
	if i < 0 {
		return
	}
	frame := t.flat[i]
	clear(t.flat[i:])
	t.flat = t.flat[:i]

	if t.root != nil || !cfg.FlatSelects(class, method) {
		return
	}

	duration := now.Sub(frame.start)
	if !cfg.FlatPolicy.Fires(duration, err != nil) {
		return
	}

	line := FlatLine{
		Time:     now,
		Thread:   t.name,
		Class:    class,
		Method:   method,
		Duration: duration,
		Err:      err,
	}
	if cfg.Snapshot.Enabled {
		line.CorrelationID = t.m.correlator.Next()
		t.m.capture(cfg, snapshot.Invocation{
			CorrelationID: line.CorrelationID.String(),
			Class:         class,
			Method:        method,
			Thread:        t.name,
			Duration:      duration,
			Args:          frame.args,
			Err:           err,
		})
	}
	t.m.submitFlat(line)
}

func (t *Tracker) open(class, method string) bool {
	for _, n := range t.stack {
		if n.class == class && n.method == method {
			return true
		}
	}
	return false
}

func (t *Tracker) abandon(reason string) {
	root := t.root
	t.reset()
	t.m.logger.Debug("Trace abandoned",
		zap.String("tracker", t.name),
		zap.String("entry", root.Signature()),
		zap.String("reason", reason))
	t.m.observer.ObserveTrace(root.Signature(), OutcomeAbandoned, 0)
}

func (t *Tracker) reset() {
	clear(t.stack)
	t.stack = t.stack[:0]
	t.root = nil
	t.hasError = false
}

// guard keeps a failure inside the probe from reaching the instrumented
// call. The tracker is reset so the next trace starts clean.
func (t *Tracker) guard(phase, class, method string) {
	r := recover()
	if r == nil {
		return
	}
	t.reset()
	clear(t.flat)
	t.flat = t.flat[:0]
	t.m.logger.Error("Tracker failure",
		zap.String("phase", phase),
		zap.String("method", class+"."+method),
		zap.String("panic", fmt.Sprint(r)))
}

type trackerKey struct{}

// WithTracker returns a context carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext returns the tracker carried by ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}
