// Package id generates the identifiers used by the probe.
//
// Two kinds of identifier exist:
//   - Correlation IDs link a rendered trace line to its persisted snapshot
//     file. They are human-sortable ("20260112-091313-001-00042") and double
//     as snapshot file names.
//   - Trace IDs are ULIDs naming one rendered call tree.
//
// Correlation IDs are timestamp plus a shared atomic sequence taken modulo
// 100000. The sequence wraps every 100,000 calls, so two calls landing in the
// same millisecond exactly one wrap apart produce the same ID. Uniqueness is
// therefore only guaranteed below 100,000 IDs per millisecond.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// SequenceModulus bounds the sequence suffix of a correlation ID.
const SequenceModulus = 100000

// correlationLayout formats the timestamp part; milliseconds are appended separately.
const correlationLayout = "20060102-150405"

// CorrelationID links a trace node to a snapshot file.
type CorrelationID string

// TraceID identifies one rendered call tree.
type TraceID string

// String methods for ID types
func (id CorrelationID) String() string { return string(id) }
func (id TraceID) String() string       { return string(id) }

// ============================================================================
// Correlation IDs
// ============================================================================

// Correlator produces correlation IDs. It is safe for concurrent use without
// external locking; the only shared state is an atomic counter.
type Correlator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewCorrelator returns a Correlator reading the wall clock.
func NewCorrelator() *Correlator {
	return &Correlator{now: time.Now}
}

// NewCorrelatorWithClock returns a Correlator reading the given clock.
// Useful for tests that need deterministic timestamps.
func NewCorrelatorWithClock(now func() time.Time) *Correlator {
	return &Correlator{now: now}
}

// Next returns a new correlation ID.
func (c *Correlator) Next() CorrelationID {
	seq := c.seq.Add(1) % SequenceModulus
	return CorrelationID(FormatCorrelation(c.now(), seq))
}

// Reset sets the sequence back to zero.
func (c *Correlator) Reset() {
	c.seq.Store(0)
}

// FormatCorrelation renders t (UTC, millisecond precision) and seq as a correlation ID.
func FormatCorrelation(t time.Time, seq uint64) string {
	t = t.UTC()
	ms := t.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s-%03d-%05d", t.Format(correlationLayout), ms, seq%SequenceModulus)
}

var (
	defaultCorrelator *Correlator
	correlatorOnce    sync.Once
)

// DefaultCorrelator returns the process-wide correlator.
func DefaultCorrelator() *Correlator {
	correlatorOnce.Do(func() {
		defaultCorrelator = NewCorrelator()
	})
	return defaultCorrelator
}

// ============================================================================
// Trace IDs (ULID)
// ============================================================================

// Generator seeds per-goroutine trace ID sources from crypto/rand.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	generatorOnce    sync.Once
)

// Default returns the singleton generator
func Default() *Generator {
	generatorOnce.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewSource returns a trace ID source for a single goroutine. Only this
// call touches the shared entropy.
func (g *Generator) NewSource() *Source {
	var seed [32]byte
	g.entropyMu.Lock()
	_, err := io.ReadFull(g.entropy, seed[:])
	g.entropyMu.Unlock()
	if err != nil {
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return &Source{entropy: ulid.Monotonic(mrand.NewChaCha8(seed), 0)}
}

// Source makes trace IDs without locking. It is not safe for concurrent use.
type Source struct {
	entropy *ulid.MonotonicEntropy
}

// Next returns a trace ID stamped with t. IDs from one source sort in
// generation order.
func (s *Source) Next(t time.Time) TraceID {
	return TraceID(ulid.MustNew(ulid.Timestamp(t), s.entropy).String())
}

// IsValidTrace checks if a string is a valid trace ID
func IsValidTrace(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
