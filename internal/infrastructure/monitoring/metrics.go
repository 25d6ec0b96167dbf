package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Queue metrics
	QueueSubmitted *prometheus.CounterVec
	QueueDropped   *prometheus.CounterVec
	QueueProcessed *prometheus.CounterVec
	QueuePanics    *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec

	// Trace metrics
	TracesTotal   *prometheus.CounterVec
	TraceDuration *prometheus.HistogramVec
	FlatLines     prometheus.Counter

	// Snapshot metrics
	SnapshotsTotal *prometheus.CounterVec
	SnapshotBytes  prometheus.Histogram

	// Serialization metrics
	SerializationFailures *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current counter values for the JSON API
type Snapshot struct {
	TracesRendered   int64   `json:"traces_rendered"`
	TracesSkipped    int64   `json:"traces_skipped"`
	TracesAbandoned  int64   `json:"traces_abandoned"`
	TracesDropped    int64   `json:"traces_dropped"`
	FlatLines        int64   `json:"flat_lines"`
	SnapshotsWritten int64   `json:"snapshots_written"`
	SnapshotsFailed  int64   `json:"snapshots_failed"`
	QueueDropped     int64   `json:"queue_dropped"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_http_requests_total",
				Help: "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_http_request_duration_seconds",
				Help:    "Status server request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		// Queue metrics
		QueueSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_queue_submitted_total",
				Help: "Items accepted by a background queue",
			},
			[]string{"queue"},
		),
		QueueDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_queue_dropped_total",
				Help: "Items discarded by a background queue",
			},
			[]string{"queue", "reason"},
		),
		QueueProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_queue_processed_total",
				Help: "Items handled by a background worker",
			},
			[]string{"queue"},
		),
		QueuePanics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_queue_handler_panics_total",
				Help: "Recovered panics in queue handlers",
			},
			[]string{"queue"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "probe_queue_depth",
				Help: "Items currently waiting in a queue",
			},
			[]string{"queue"},
		),

		// Trace metrics
		TracesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_traces_total",
				Help: "Closed traces by outcome",
			},
			[]string{"outcome"},
		),
		TraceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_trace_duration_seconds",
				Help:    "Root duration of closed traces",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"entry"},
		),
		FlatLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probe_flat_lines_total",
				Help: "Per-invocation lines emitted in flat mode",
			},
		),

		// Snapshot metrics
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_snapshots_total",
				Help: "Snapshot persistence attempts by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "probe_snapshot_bytes",
				Help:    "Size of written snapshot files",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
		),

		// Serialization metrics
		SerializationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_serialization_failures_total",
				Help: "Values that could not be serialized",
			},
			[]string{"reason"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "probe_uptime_seconds",
			Help: "Probe uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a status server request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveSubmit records an accepted queue item
func (m *Metrics) ObserveSubmit(queue string, depth int) {
	m.QueueSubmitted.WithLabelValues(queue).Inc()
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveDrop records discarded queue items
func (m *Metrics) ObserveDrop(queue, reason string, n int) {
	m.QueueDropped.WithLabelValues(queue, reason).Add(float64(n))

	m.mu.Lock()
	m.snapshot.QueueDropped += int64(n)
	m.mu.Unlock()
}

// ObserveDone records a handled queue item
func (m *Metrics) ObserveDone(queue string, depth int, panicked bool) {
	m.QueueProcessed.WithLabelValues(queue).Inc()
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
	if panicked {
		m.QueuePanics.WithLabelValues(queue).Inc()
	}
}

// ObserveTrace records a closed trace. outcome is "rendered", "skipped",
// "dropped" (render queue refused it) or "abandoned".
func (m *Metrics) ObserveTrace(entry, outcome string, duration time.Duration) {
	m.TracesTotal.WithLabelValues(outcome).Inc()
	if outcome != "abandoned" {
		m.TraceDuration.WithLabelValues(entry).Observe(duration.Seconds())
	}

	m.mu.Lock()
	switch outcome {
	case "rendered":
		m.snapshot.TracesRendered++
	case "skipped":
		m.snapshot.TracesSkipped++
	case "abandoned":
		m.snapshot.TracesAbandoned++
	case "dropped":
		m.snapshot.TracesDropped++
	}
	m.mu.Unlock()
}

// ObserveFlatLine records a flat-mode line
func (m *Metrics) ObserveFlatLine() {
	m.FlatLines.Inc()

	m.mu.Lock()
	m.snapshot.FlatLines++
	m.mu.Unlock()
}

// ObserveSnapshot records a persistence attempt. outcome is "written" or a failure reason.
func (m *Metrics) ObserveSnapshot(outcome string, size int) {
	m.SnapshotsTotal.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if outcome == "written" {
		m.SnapshotBytes.Observe(float64(size))
		m.snapshot.SnapshotsWritten++
		return
	}
	m.snapshot.SnapshotsFailed++
}

// ObserveSerializationFailure records a dropped argument or error value
func (m *Metrics) ObserveSerializationFailure(reason string) {
	m.SerializationFailures.WithLabelValues(reason).Inc()
}

// Current returns a copy of the JSON counters
func (m *Metrics) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
