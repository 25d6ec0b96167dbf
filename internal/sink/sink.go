package sink

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned by Write after a sink has been closed.
var ErrClosed = errors.New("sink: closed")

// Sink receives rendered text. Write must not block for long; callers do
// not retry.
type Sink interface {
	Write(text string) error
}

// Console writes to an io.Writer, stdout by default.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, text)
	return err
}

// Multi fans a write out to every sink. All sinks are written even when
// one fails.
type Multi []Sink

// NewMulti skips nil sinks.
func NewMulti(sinks ...Sink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) Write(text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
