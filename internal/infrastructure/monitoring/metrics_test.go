package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ObserveSubmit("render", 1)
	assert.Contains(t, scrape(t, a), `probe_queue_submitted_total{queue="render"} 1`)
	assert.NotContains(t, scrape(t, b), `probe_queue_submitted_total{queue="render"}`)
}

func TestQueueObservations(t *testing.T) {
	m := NewMetrics()

	m.ObserveSubmit("snapshot", 3)
	m.ObserveDrop("snapshot", "overflow", 2)
	m.ObserveDone("snapshot", 2, true)

	body := scrape(t, m)
	assert.Contains(t, body, `probe_queue_dropped_total{queue="snapshot",reason="overflow"} 2`)
	assert.Contains(t, body, `probe_queue_handler_panics_total{queue="snapshot"} 1`)
	assert.Contains(t, body, `probe_queue_depth{queue="snapshot"} 2`)
	assert.Equal(t, int64(2), m.Current().QueueDropped)
}

func TestTraceAndSnapshotCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveTrace("A.run", "rendered", 170*time.Millisecond)
	m.ObserveTrace("A.run", "skipped", 10*time.Millisecond)
	m.ObserveTrace("A.run", "abandoned", 0)
	m.ObserveFlatLine()
	m.ObserveSnapshot("written", 512)
	m.ObserveSnapshot("io", 0)
	m.ObserveSerializationFailure("size")

	s := m.Current()
	assert.Equal(t, int64(1), s.TracesRendered)
	assert.Equal(t, int64(1), s.TracesSkipped)
	assert.Equal(t, int64(1), s.TracesAbandoned)
	assert.Equal(t, int64(1), s.FlatLines)
	assert.Equal(t, int64(1), s.SnapshotsWritten)
	assert.Equal(t, int64(1), s.SnapshotsFailed)
	assert.Greater(t, s.UptimeSeconds, 0.0)

	body := scrape(t, m)
	assert.Contains(t, body, `probe_trace_duration_seconds_count{entry="A.run"} 2`)
	assert.Contains(t, body, `probe_serialization_failures_total{reason="size"} 1`)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, scrape(t, m), `probe_http_requests_total{method="GET",path="/health",status="200"} 1`)
}
