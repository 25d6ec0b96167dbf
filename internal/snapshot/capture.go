package snapshot

import (
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
)

// Invocation is what the tracker knows about a finished call.
type Invocation struct {
	CorrelationID string
	Class         string
	Method        string
	Thread        string
	Duration      time.Duration
	Args          []any
	Err           error
}

// CaptureOptions are read from the live configuration on every capture.
type CaptureOptions struct {
	// Sync encodes on the calling goroutine, so the bytes reflect argument
	// state at exit. Async defers encoding to the writer goroutine; values
	// mutated after exit may be captured in their later state.
	Sync       bool
	StackDepth int
}

// Capturer turns invocations into snapshots and queues them on a Writer.
type Capturer struct {
	writer *Writer
	codec  serialization.Codec
	now    func() time.Time
}

// NewCapturer creates a Capturer using codec for arguments and error digests.
func NewCapturer(writer *Writer, codec serialization.Codec) *Capturer {
	return &Capturer{writer: writer, codec: codec, now: time.Now}
}

// Capture queues a snapshot of inv. It never blocks and never fails the
// caller; false means the writer is no longer accepting work.
func (c *Capturer) Capture(inv Invocation, opts CaptureOptions) bool {
	s := &Snapshot{
		CorrelationID: inv.CorrelationID,
		TimestampMs:   c.now().UnixMilli(),
		ClassName:     inv.Class,
		MethodName:    inv.Method,
		ThreadName:    inv.Thread,
		DurationMs:    float64(inv.Duration) / float64(time.Millisecond),
		ArgTypes:      serialization.TypeNames(inv.Args),
	}

	if opts.Sync {
		s.Args = serialization.EncodeAll(c.codec, inv.Args)
		s.Error = encodeError(c.codec, inv.Err, opts.StackDepth)
		return c.writer.Submit(s)
	}

	args := append([]any(nil), inv.Args...)
	return c.writer.worker.Submit(job{
		snap:  s,
		codec: c.codec,
		args:  args,
		err:   inv.Err,
		depth: opts.StackDepth,
	})
}

func encodeError(codec serialization.Codec, err error, depth int) []byte {
	if err == nil {
		return nil
	}
	b, ok := codec.Encode(errdigest.Build(err, depth))
	if !ok {
		return nil
	}
	return b
}
