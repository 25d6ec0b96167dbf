package render

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/shared/id"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

var start = time.Date(2026, 1, 12, 9, 13, 13, 0, time.UTC)

type collector struct {
	mu     sync.Mutex
	traces []*tree.Trace
	lines  []tree.FlatLine
	texts  []string
}

func (c *collector) SubmitTrace(t *tree.Trace) bool {
	c.traces = append(c.traces, t)
	return true
}

func (c *collector) SubmitFlat(l tree.FlatLine) bool {
	c.lines = append(c.lines, l)
	return true
}

func (c *collector) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *collector) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type pathError struct{}

func (*pathError) Error() string { return "no such file" }

// scenario runs A.run -> B.work -> C.query plus a second child and
// returns the trace.
func scenario(t *testing.T, snapshots bool, err error) *tree.Trace {
	t.Helper()

	cfg := config.Default()
	cfg.Tree.EntryMethods = []string{"A.run"}
	cfg.Tree.Packages = []string{"B", "C", "D"}
	cfg.Tree.ThresholdMs = 50
	cfg.Tree.Trigger = "timeout,exception"
	cfg.Flat.Enabled = false
	cfg.Snapshot.Enabled = snapshots
	store, e := config.NewStore(cfg)
	require.NoError(t, e)

	now := start
	clock := func() time.Time { return now }
	c := &collector{}
	tr := tree.NewManager(tree.Options{
		Store:      store,
		Correlator: id.NewCorrelatorWithClock(clock),
		Submitter:  c,
		Clock:      clock,
	}).NewTracker("worker-1")

	tr.OnEnter("A", "run")
	now = now.Add(10 * ms)
	tr.OnEnter("B", "work")
	now = now.Add(60 * ms)
	tr.OnEnter("C", "query")
	now = now.Add(30 * ms)
	tr.OnExit("C", "query", nil)
	now = now.Add(60 * ms)
	tr.OnExit("B", "work", nil)
	tr.OnEnter("D", "audit")
	now = now.Add(5 * ms)
	tr.OnExit("D", "audit", err)
	now = now.Add(5 * ms)
	tr.OnExit("A", "run", err)

	require.Len(t, c.traces, 1)
	return c.traces[0]
}

func TestTraceRendering(t *testing.T) {
	trace := scenario(t, false, nil)
	out := Trace(trace)

	lines := strings.Split(strings.TrimPrefix(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	assert.True(t, strings.HasPrefix(lines[0], "╔═══"))
	assert.Equal(t, "║ [2026-01-12 09:13:13.000] [worker-1] Method Call Tree", lines[1])
	assert.Equal(t, "║ Trace: "+trace.ID.String(), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "╠═══"))
	assert.Equal(t, "║ └── A.run - 170.00 ms", lines[4])
	assert.Equal(t, "║     ├── B.work - 150.00 ms", lines[5])
	assert.Equal(t, "║     │   └── C.query - 30.00 ms", lines[6])
	assert.Equal(t, "║     └── D.audit - 5.00 ms", lines[7])
	assert.True(t, strings.HasPrefix(lines[8], "╚═══"))
	assert.NotContains(t, out, "Exception")
}

func TestTraceRenderingWithErrorAndSnapshots(t *testing.T) {
	trace := scenario(t, true, &pathError{})
	out := Trace(trace)

	assert.Contains(t, out, "║ ⚠ Exception: *render.pathError\n")
	assert.Contains(t, out, "D.audit - 5.00 ms [EXCEPTION: pathError]\n")
	assert.Regexp(t, `└── A\.run - 170\.00 ms \[EXCEPTION: pathError\] \[snap:\d{8}-\d{6}-\d{3}-\d{5}\]`, out)
	assert.NotContains(t, out, "B.work - 150.00 ms [snap")
}

func TestFlatRendering(t *testing.T) {
	line := tree.FlatLine{
		Time:     start,
		Thread:   "worker-2",
		Class:    "svc.Repo",
		Method:   "save",
		Duration: 12346 * time.Microsecond,
	}
	assert.Equal(t, "[2026-01-12 09:13:13.000] [MethodProbe] [worker-2] svc.Repo.save - 12.35 ms\n", Flat(line))

	line.Err = &pathError{}
	line.CorrelationID = "20260112-091313-000-00007"
	assert.Equal(t,
		"[2026-01-12 09:13:13.000] [MethodProbe] [worker-2] svc.Repo.save - 12.35 ms [EXCEPTION: pathError] [snap:20260112-091313-000-00007]\n",
		Flat(line))
}

func TestWorkerWritesToSink(t *testing.T) {
	out := &collector{}
	w := NewWorker(Config{Sink: out, QueueSize: 10})
	w.Start()

	trace := scenario(t, false, nil)
	require.True(t, w.SubmitTrace(trace))
	require.True(t, w.SubmitFlat(tree.FlatLine{Time: start, Thread: "t", Class: "X", Method: "y"}))
	require.NoError(t, w.Stop(time.Second))

	texts := out.Texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Method Call Tree")
	assert.Contains(t, texts[1], "X.y - 0.00 ms")

	sums := w.Stats().Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, "A.run", sums[0].Entry)
	assert.Equal(t, int64(1), sums[0].Count)
	assert.InDelta(t, 170.0, sums[0].MeanMs, 1e-9)

	assert.False(t, w.SubmitTrace(trace))
}

type brokenSink struct{ calls int }

func (b *brokenSink) Write(string) error {
	b.calls++
	return errors.New("broken pipe")
}

func TestWorkerSurvivesSinkErrors(t *testing.T) {
	b := &brokenSink{}
	w := NewWorker(Config{Sink: b})
	w.Start()
	for i := 0; i < 3; i++ {
		w.SubmitFlat(tree.FlatLine{Time: start, Class: "X", Method: "y"})
	}
	require.NoError(t, w.Stop(time.Second))
	assert.Equal(t, 3, b.calls)
}

func TestWorkerOverflowDropsOldest(t *testing.T) {
	out := &collector{}
	w := NewWorker(Config{Sink: out, QueueSize: 2})
	for _, m := range []string{"a", "b", "c"} {
		w.SubmitFlat(tree.FlatLine{Time: start, Class: "X", Method: m})
	}
	assert.Equal(t, int64(1), w.Dropped())
	assert.Equal(t, 2, w.Pending())

	w.Start()
	require.NoError(t, w.Stop(time.Second))
	texts := out.Texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "X.b")
	assert.Contains(t, texts[1], "X.c")
}

func TestStats(t *testing.T) {
	s := NewStats(4)
	for _, d := range []int{10, 20, 30, 40, 50, 60} {
		s.Add("A.run", time.Duration(d)*ms)
	}
	s.Add("B.go", 5*ms)

	sums := s.Summaries()
	require.Len(t, sums, 2)

	a := sums[0]
	assert.Equal(t, "A.run", a.Entry)
	assert.Equal(t, int64(6), a.Count)
	// window keeps the last four: 30 40 50 60
	assert.InDelta(t, 45.0, a.MeanMs, 1e-9)
	assert.InDelta(t, 40.0, a.P50Ms, 1e-9)
	assert.InDelta(t, 60.0, a.P95Ms, 1e-9)
	assert.InDelta(t, 60.0, a.MaxMs, 1e-9)

	assert.Equal(t, "B.go", sums[1].Entry)
	assert.InDelta(t, 5.0, sums[1].P50Ms, 1e-9)

	s.Reset()
	assert.Empty(t, s.Summaries())
}
