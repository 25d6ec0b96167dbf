package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Magic identifies a snapshot file.
const Magic = "MTSS"

// Version is the only record version this package reads and writes.
const Version int32 = 1

// maxCount bounds argument counts when decoding untrusted files.
const maxCount = 1 << 16

var (
	ErrBadMagic           = errors.New("snapshot: bad magic, not a snapshot file")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
	ErrCorrupt            = errors.New("snapshot: corrupt record")
)

// FormatError reports a file that could not be decoded.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Marshal encodes s into the binary record format.
func Marshal(s *Snapshot) []byte {
	e := encoder{buf: make([]byte, 0, estimate(s))}

	e.buf = append(e.buf, Magic...)
	e.int32(Version)

	e.text(s.CorrelationID)
	e.int64(s.TimestampMs)
	e.text(s.ClassName)
	e.text(s.MethodName)
	e.text(s.ThreadName)
	e.float64(s.DurationMs)

	e.int32(int32(len(s.ArgTypes)))
	for _, t := range s.ArgTypes {
		e.text(t)
	}

	e.int32(int32(len(s.Args)))
	for _, a := range s.Args {
		e.blob(a)
	}

	e.blob(s.Error)
	return e.buf
}

// Write encodes s to w.
func Write(w io.Writer, s *Snapshot) error {
	_, err := w.Write(Marshal(s))
	return err
}

// Unmarshal decodes one record. Errors wrap ErrBadMagic,
// ErrUnsupportedVersion or ErrCorrupt.
func Unmarshal(data []byte) (*Snapshot, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], []byte(Magic)) {
		return nil, ErrBadMagic
	}

	d := decoder{data: data, off: len(Magic)}
	if v := d.int32(); d.err == nil && v != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, v, Version)
	}

	s := &Snapshot{}
	s.CorrelationID = d.text()
	s.TimestampMs = d.int64()
	s.ClassName = d.text()
	s.MethodName = d.text()
	s.ThreadName = d.text()
	s.DurationMs = d.float64()

	if n := d.count(2); n > 0 {
		s.ArgTypes = make([]string, n)
		for i := range s.ArgTypes {
			s.ArgTypes[i] = d.text()
		}
	}

	if n := d.count(4); n > 0 {
		s.Args = make([][]byte, n)
		for i := range s.Args {
			s.Args[i] = d.blob()
		}
	}

	s.Error = d.blob()

	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

// Read decodes one record from r.
func Read(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

type encoder struct {
	buf []byte
}

func (e *encoder) int32(v int32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v))
}

func (e *encoder) int64(v int64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v))
}

func (e *encoder) float64(v float64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// text truncates at a rune boundary if s does not fit a uint16 length.
func (e *encoder) text(s string) {
	if len(s) > math.MaxUint16 {
		n := math.MaxUint16
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

// blob writes -1 for nil so absent and empty stay distinguishable.
func (e *encoder) blob(b []byte) {
	if b == nil {
		e.int32(-1)
		return
	}
	e.int32(int32(len(b)))
	e.buf = append(e.buf, b...)
}

func estimate(s *Snapshot) int {
	n := 64 + len(s.CorrelationID) + len(s.ClassName) + len(s.MethodName) + len(s.ThreadName) + len(s.Error)
	for _, t := range s.ArgTypes {
		n += 2 + len(t)
	}
	for _, a := range s.Args {
		n += 4 + len(a)
	}
	return n
}

// decoder latches the first error; later reads return zero values.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorrupt, n, d.off, len(d.data)-d.off)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) int32() int32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) int64() int64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (d *decoder) float64() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (d *decoder) text() string {
	b := d.take(2)
	if b == nil {
		return ""
	}
	return string(d.take(int(binary.BigEndian.Uint16(b))))
}

// count reads an element count, rejecting values that cannot possibly fit
// in the remaining bytes given each element's minimum size.
func (d *decoder) count(minSize int) int {
	n := d.int32()
	if d.err != nil {
		return 0
	}
	if n < 0 || n > maxCount || int(n)*minSize > len(d.data)-d.off {
		d.err = fmt.Errorf("%w: implausible count %d at offset %d", ErrCorrupt, n, d.off-4)
		return 0
	}
	return int(n)
}

func (d *decoder) blob() []byte {
	n := d.int32()
	if d.err != nil {
		return nil
	}
	switch {
	case n == -1:
		return nil
	case n < -1:
		d.err = fmt.Errorf("%w: negative length %d at offset %d", ErrCorrupt, n, d.off-4)
		return nil
	}
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
