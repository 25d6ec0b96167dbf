package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/render"
	"github.com/GriffinCanCode/methodprobe/internal/sink"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func scenarioConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Tree.EntryMethods = []string{"A.run"}
	cfg.Tree.Packages = []string{"B", "C"}
	cfg.Tree.ThresholdMs = 50
	cfg.Flat.Enabled = false
	cfg.Snapshot.Enabled = true
	cfg.Snapshot.Dir = filepath.Join(dir, "snapshots")
	cfg.Output.Dir = filepath.Join(dir, "logs")
	return cfg
}

// runScenario drives A.run -> B.work (120ms) -> C.query (30ms).
func runScenario(e *Engine, c *clock) {
	t := e.Tracker("main")
	t.OnEnter("A", "run", "order-42")
	c.Advance(20 * time.Millisecond)
	t.OnEnter("B", "work", 7)
	c.Advance(90 * time.Millisecond)
	t.OnEnter("C", "query")
	c.Advance(30 * time.Millisecond)
	t.OnExit("C", "query", nil)
	t.OnExit("B", "work", nil)
	c.Advance(30 * time.Millisecond)
	t.OnExit("A", "run", nil)
}

func TestEngineFileOutputAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	cfg := scenarioConfig(dir)
	cfg.Output.Mode = config.OutputFile
	c := newClock()

	e, err := New(cfg, Options{Logger: logging.NewNop(), Clock: c.Now})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	runScenario(e, c)
	require.NoError(t, e.Shutdown(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, sink.FileName(c.Now())))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[main] Method Call Tree")
	assert.Contains(t, text, "└── A.run - 170.00 ms")
	assert.Contains(t, text, "    └── B.work - 120.00 ms")
	assert.Contains(t, text, "        └── C.query - 30.00 ms")
	assert.Contains(t, text, "[snap:")

	files, err := snapshot.Find(cfg.Snapshot.Dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	snap, err := snapshot.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "A.run", snap.FullMethodName())
	assert.Equal(t, "main", snap.ThreadName)
	assert.InDelta(t, 170.0, snap.DurationMs, 1e-9)
	assert.Equal(t, []string{"string"}, snap.ArgTypes)
	assert.Contains(t, text, "[snap:"+snap.CorrelationID+"]")

	v, ok := e.Codec().Decode(snap.Args[0])
	require.True(t, ok)
	assert.Equal(t, "order-42", v)

	summaries := e.Stats().Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "A.run", summaries[0].Entry)
	assert.Equal(t, int64(1), e.Metrics().Current().TracesRendered)
	assert.Equal(t, int64(1), e.Metrics().Current().SnapshotsWritten)
}

func TestEngineConsoleOutput(t *testing.T) {
	cfg := scenarioConfig(t.TempDir())
	cfg.Snapshot.Enabled = false
	c := newClock()
	var out bytes.Buffer

	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: &out, Clock: c.Now})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	runScenario(e, c)
	require.NoError(t, e.Shutdown(context.Background()))

	assert.Contains(t, out.String(), "└── A.run - 170.00 ms")
	assert.NotContains(t, out.String(), "[snap:")
	_, err = os.Stat(cfg.Snapshot.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestEngineSkipsFastTraces(t *testing.T) {
	cfg := scenarioConfig(t.TempDir())
	cfg.Tree.ThresholdMs = 500
	c := newClock()
	var out bytes.Buffer

	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: &out, Clock: c.Now})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	runScenario(e, c)
	require.NoError(t, e.Shutdown(context.Background()))

	assert.Empty(t, out.String())
	assert.Equal(t, int64(1), e.Metrics().Current().TracesSkipped)
}

func TestEngineStatusServer(t *testing.T) {
	cfg := scenarioConfig(t.TempDir())
	cfg.Snapshot.Enabled = false
	cfg.Server.Enabled = true
	cfg.Server.Addr = "127.0.0.1:0"
	c := newClock()

	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: io.Discard, Clock: c.Now})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	addr := e.ServerAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	names := make([]string, 0, 2)
	for _, q := range e.Queues() {
		names = append(names, q.Name)
	}
	assert.Equal(t, []string{render.QueueName, snapshot.QueueName}, names)
}

func TestEngineLiveConfig(t *testing.T) {
	cfg := scenarioConfig(t.TempDir())
	cfg.Snapshot.Enabled = false
	c := newClock()
	var out bytes.Buffer

	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: &out, Clock: c.Now})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	require.NoError(t, e.Store().Update(func(cfg *config.Config) {
		cfg.Tree.Enabled = false
	}))
	runScenario(e, c)
	require.NoError(t, e.Shutdown(context.Background()))

	assert.Empty(t, out.String())
}

func TestEngineWatchesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tree:\n  threshold_ms: 50\n"), 0o644))

	cfg := scenarioConfig(dir)
	cfg.Snapshot.Enabled = false
	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: io.Discard, ConfigPath: path, Watch: true})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	require.NoError(t, os.WriteFile(path, []byte("tree:\n  threshold_ms: 900\n"), 0o644))
	require.Eventually(t, func() bool {
		return e.Store().Load().Tree.ThresholdMs == 900
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tree.ThresholdMs = -1

	_, err := New(cfg, Options{Logger: logging.NewNop()})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "threshold_ms"))
}

func TestEngineShutdown(t *testing.T) {
	cfg := scenarioConfig(t.TempDir())
	e, err := New(cfg, Options{Logger: logging.NewNop(), Console: io.Discard})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Shutdown(context.Background()), ErrNotStarted)

	require.NoError(t, e.Start())
	require.NoError(t, e.Shutdown(context.Background()))
	require.NoError(t, e.Shutdown(context.Background()))

	// Trackers keep working after shutdown; their output is discarded.
	tr := e.Tracker("late")
	assert.True(t, tr.OnEnter("A", "run"))
	tr.OnExit("A", "run", nil)
	assert.False(t, tr.InTree())
}
