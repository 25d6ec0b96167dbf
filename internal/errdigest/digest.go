// Package errdigest condenses a returned error into a bounded, serializable
// summary suitable for a snapshot file.
package errdigest

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	// DefaultDepth is the number of frames kept for the primary error.
	DefaultDepth = 10
	// CauseDepth is the number of frames kept for the cause.
	CauseDepth = 3
	// maxChain bounds Unwrap walks over pathological error chains.
	maxChain = 32
)

// Digest is the persisted form of an error.
type Digest struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Frames  []string `json:"frames,omitempty"`
	Omitted int      `json:"omitted,omitempty"`
	Cause   *Section `json:"cause,omitempty"`
	Trace   string   `json:"trace,omitempty"`
}

// Section is the digest of one level of cause.
type Section struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Frames  []string `json:"frames,omitempty"`
	Omitted int      `json:"omitted,omitempty"`
}

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// framer lets callers provide pre-formatted frames for their own error types.
type framer interface {
	StackFrames() []string
}

// Build condenses err, keeping at most maxDepth frames of the primary error
// and CauseDepth frames of its cause. It never panics: if anything goes wrong
// the fields resolved so far are returned.
func Build(err error, maxDepth int) (d Digest) {
	if err == nil {
		return Digest{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultDepth
	}

	defer func() {
		if r := recover(); r != nil {
			if d.Type == "" {
				d.Type = "unknown"
			}
			d.Trace = d.format()
		}
	}()

	d.Type = TypeName(err)
	d.Message = err.Error()
	d.Frames, d.Omitted = truncate(frames(err), maxDepth)

	if cause := causeOf(err); cause != nil {
		s := Section{Type: TypeName(cause), Message: cause.Error()}
		s.Frames, s.Omitted = truncate(frames(cause), CauseDepth)
		d.Cause = &s
	}

	d.Trace = d.format()
	return d
}

// FromPanic turns a recovered panic value into an error carrying the stack
// of the recovery site.
func FromPanic(v any) error {
	if err, ok := v.(error); ok {
		return pkgerrors.WithStack(err)
	}
	return pkgerrors.Errorf("panic: %v", v)
}

// TypeName returns the dynamic type of err, e.g. "*fs.PathError".
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T", err)
}

// ShortName strips pointer markers and the package qualifier: "*fs.PathError" -> "PathError".
func ShortName(typeName string) string {
	name := strings.TrimLeft(typeName, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// ShortType returns the short type name of the digested error.
func (d Digest) ShortType() string {
	return ShortName(d.Type)
}

// String renders "type: message".
func (d Digest) String() string {
	if d.Message == "" {
		return d.Type
	}
	return d.Type + ": " + d.Message
}

func (d Digest) format() string {
	var b strings.Builder
	writeSection(&b, d.Type, d.Message, d.Frames, d.Omitted)
	if d.Cause != nil {
		b.WriteString("Caused by: ")
		writeSection(&b, d.Cause.Type, d.Cause.Message, d.Cause.Frames, d.Cause.Omitted)
	}
	return b.String()
}

func writeSection(b *strings.Builder, typ, msg string, frames []string, omitted int) {
	b.WriteString(typ)
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	b.WriteByte('\n')
	for _, f := range frames {
		b.WriteString("\tat ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	if omitted > 0 {
		fmt.Fprintf(b, "\t… %d more\n", omitted)
	}
}

func frames(err error) []string {
	switch e := err.(type) {
	case framer:
		return e.StackFrames()
	case stackTracer:
		st := e.StackTrace()
		out := make([]string, 0, len(st))
		for _, f := range st {
			out = append(out, fmt.Sprintf("%n (%s:%d)", f, f, f))
		}
		return out
	}
	return nil
}

func truncate(frames []string, depth int) ([]string, int) {
	if len(frames) <= depth {
		return frames, 0
	}
	return frames[:depth], len(frames) - depth
}

// causeOf walks the Unwrap chain to the first error whose message differs
// from err's. Wrappers that only attach a stack (pkg/errors.WithStack) are
// skipped that way.
func causeOf(err error) error {
	msg := err.Error()
	cur := err
	for i := 0; i < maxChain; i++ {
		next := errors.Unwrap(cur)
		if next == nil || next == cur {
			return nil
		}
		if next.Error() != msg {
			return next
		}
		cur = next
	}
	return nil
}
