package render

import (
	"slices"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of recent durations kept per entry method.
const DefaultWindow = 1024

// Summary describes recent rendered traces of one entry method.
type Summary struct {
	Entry  string  `json:"entry"`
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// Stats keeps a sliding window of trace durations per entry method.
type Stats struct {
	window int

	mu      sync.Mutex
	entries map[string]*series
}

type series struct {
	count   int64
	samples []float64
	next    int
}

// NewStats creates Stats keeping window samples per entry.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Stats{window: window, entries: make(map[string]*series)}
}

// Add records one trace duration.
func (s *Stats) Add(entry string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.entries[entry]
	if !ok {
		sr = &series{samples: make([]float64, 0, min(s.window, 64))}
		s.entries[entry] = sr
	}
	sr.count++
	if len(sr.samples) < s.window {
		sr.samples = append(sr.samples, ms)
		return
	}
	sr.samples[sr.next] = ms
	sr.next = (sr.next + 1) % s.window
}

// Summaries returns one Summary per entry, sorted by entry name.
func (s *Stats) Summaries() []Summary {
	s.mu.Lock()
	out := make([]Summary, 0, len(s.entries))
	for entry, sr := range s.entries {
		out = append(out, summarize(entry, sr.count, slices.Clone(sr.samples)))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out
}

// Reset forgets all samples.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*series)
}

func summarize(entry string, count int64, samples []float64) Summary {
	sum := Summary{Entry: entry, Count: count}
	if len(samples) == 0 {
		return sum
	}
	sort.Float64s(samples)
	sum.MeanMs = stat.Mean(samples, nil)
	sum.P50Ms = stat.Quantile(0.5, stat.Empirical, samples, nil)
	sum.P95Ms = stat.Quantile(0.95, stat.Empirical, samples, nil)
	sum.MaxMs = samples[len(samples)-1]
	return sum
}
