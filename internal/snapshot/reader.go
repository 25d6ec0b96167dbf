package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

const (
	maxValueLen   = 200
	maxStackLines = 8
	rule          = "══════════════════════════════════════════════════════════════"
)

// ErrNoMatch is returned when a pattern resolves to no files.
var ErrNoMatch = errors.New("no snapshot files matched")

// Find resolves pattern to snapshot files:
//   - an existing regular file is returned as is
//   - a directory is searched recursively for *.snapshot files
//   - a pattern with wildcards is split at the last separator before the
//     first wildcard; the left part is the base directory and the rest is
//     matched (doublestar syntax) against paths relative to it, or against
//     the bare file name
//
// A pattern that resolves to nothing returns an empty slice, not an error.
func Find(pattern string) ([]string, error) {
	if info, err := os.Stat(pattern); err == nil {
		if info.Mode().IsRegular() {
			return []string{pattern}, nil
		}
		if info.IsDir() {
			return walk(filepath.Clean(pattern), "**/*"+Ext)
		}
	}

	slashed := filepath.ToSlash(pattern)
	idx := strings.IndexAny(slashed, "*?[{")
	if idx < 0 {
		return nil, nil
	}

	base, glob := ".", slashed
	if cut := strings.LastIndexByte(slashed[:idx], '/'); cut >= 0 {
		base, glob = slashed[:cut+1], slashed[cut+1:]
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	root := filepath.Clean(filepath.FromSlash(base))
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	return walk(root, glob)
}

func walk(root, glob string) ([]string, error) {
	var (
		mu      sync.Mutex
		matches []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(glob, rel); !ok {
			if ok, _ = doublestar.Match(glob, d.Name()); !ok {
				return nil
			}
		}

		mu.Lock()
		matches = append(matches, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes the snapshot at path. Decode failures are *FormatError.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return s, nil
}

// Reader prints snapshot files for humans.
type Reader struct {
	codec  serialization.Codec
	out    io.Writer
	errOut io.Writer
}

// NewReader creates a Reader printing to out and reporting per-file
// failures to errOut. codec should know errdigest.Digest to show errors in
// full.
func NewReader(codec serialization.Codec, out, errOut io.Writer) *Reader {
	return &Reader{codec: codec, out: out, errOut: errOut}
}

// Result summarizes one Run
type Result struct {
	Matched int
	Printed int
	Failed  int
}

// Run prints every snapshot pattern resolves to. Unreadable files are
// reported and skipped, except when pattern names a single file, in which
// case the failure is returned.
func (r *Reader) Run(pattern string) (Result, error) {
	files, err := Find(pattern)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoMatch, pattern)
	}

	single := len(files) == 1 && files[0] == pattern
	res := Result{Matched: len(files)}
	for _, f := range files {
		s, err := ReadFile(f)
		if err != nil {
			if single {
				return res, err
			}
			res.Failed++
			fmt.Fprintf(r.errOut, "Failed to read %s: %v\n", f, err)
			continue
		}

		fmt.Fprintf(r.out, "\nFile: %s\n", f)
		io.WriteString(r.out, r.Format(s))
		res.Printed++
	}
	return res, nil
}

// Format renders s as a boxed block.
func (r *Reader) Format(s *Snapshot) string {
	var b strings.Builder

	b.WriteString("╔" + rule + "\n")
	b.WriteString("║ Method Snapshot\n")
	b.WriteString("╠" + rule + "\n")
	if s.CorrelationID != "" {
		fmt.Fprintf(&b, "║ ID:       %s\n", s.CorrelationID)
	}
	fmt.Fprintf(&b, "║ Time:     %s\n", s.Time().Format("2006-01-02 15:04:05.000 MST"))
	fmt.Fprintf(&b, "║ Thread:   %s\n", s.ThreadName)
	fmt.Fprintf(&b, "║ Method:   %s\n", s.FullMethodName())
	fmt.Fprintf(&b, "║ Duration: %.2f ms\n", s.DurationMs)

	if len(s.Error) > 0 {
		r.formatError(&b, s.Error)
	}

	b.WriteString("╠" + rule + "\n")
	b.WriteString("║ Arguments:\n")
	if len(s.ArgTypes) == 0 {
		b.WriteString("║   (none)\n")
	}
	for i, typ := range s.ArgTypes {
		var v any
		if i < len(s.Args) && s.Args[i] != nil {
			v, _ = r.codec.Decode(s.Args[i])
		}
		fmt.Fprintf(&b, "║   [%d] %s = %s\n", i, typ, FormatValue(v))
	}

	b.WriteString("╚" + rule + "\n")
	return b.String()
}

func (r *Reader) formatError(b *strings.Builder, data []byte) {
	v, ok := r.codec.Decode(data)
	if !ok {
		return
	}

	var typ, msg, trace string
	switch d := v.(type) {
	case errdigest.Digest:
		typ, msg, trace = d.Type, d.Message, d.Trace
	case map[string]any:
		typ, _ = d["type"].(string)
		msg, _ = d["message"].(string)
		trace, _ = d["trace"].(string)
	default:
		return
	}

	b.WriteString("╠" + rule + "\n")
	fmt.Fprintf(b, "║ ⚠ Error: %s\n", typ)
	if msg != "" {
		fmt.Fprintf(b, "║   Message: %s\n", msg)
	}
	if trace == "" {
		return
	}

	lines := strings.Split(strings.TrimRight(trace, "\n"), "\n")
	b.WriteString("║   Stack Trace:\n")
	shown := min(maxStackLines, len(lines))
	for _, line := range lines[:shown] {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(b, "║     %s\n", line)
		}
	}
	if len(lines) > shown {
		fmt.Fprintf(b, "║     … %d more lines\n", len(lines)-shown)
	}
}

// FormatValue renders a decoded argument, truncating past 200 characters.
func FormatValue(v any) string {
	if v == nil {
		return "null"
	}
	s := fmt.Sprintf("%v", v)
	if utf8.RuneCountInString(s) <= maxValueLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxValueLen]) + "..."
}
