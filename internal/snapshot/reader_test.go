package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, path string, s *Snapshot) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, Marshal(s), 0o644))
}

func snapshotTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSnapshot(t, filepath.Join(dir, "2024-03-01", "a.snapshot"), &Snapshot{CorrelationID: "a"})
	writeSnapshot(t, filepath.Join(dir, "2024-03-01", "b.snapshot"), &Snapshot{CorrelationID: "b"})
	writeSnapshot(t, filepath.Join(dir, "2024-03-02", "c.snapshot"), &Snapshot{CorrelationID: "c"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-03-02", "notes.txt"), []byte("x"), 0o644))
	return dir
}

func TestFind(t *testing.T) {
	dir := snapshotTree(t)
	day1 := filepath.Join(dir, "2024-03-01")

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"exact file", filepath.Join(day1, "a.snapshot"), []string{filepath.Join(day1, "a.snapshot")}},
		{"directory is recursive", dir, []string{
			filepath.Join(day1, "a.snapshot"),
			filepath.Join(day1, "b.snapshot"),
			filepath.Join(dir, "2024-03-02", "c.snapshot"),
		}},
		{"glob in one day", filepath.Join(day1, "*.snapshot"), []string{
			filepath.Join(day1, "a.snapshot"),
			filepath.Join(day1, "b.snapshot"),
		}},
		{"doublestar across days", dir + "/**/c.snapshot", []string{filepath.Join(dir, "2024-03-02", "c.snapshot")}},
		{"wildcard in directory part", dir + "/2024-03-0*/b.snapshot", []string{filepath.Join(day1, "b.snapshot")}},
		{"missing file", filepath.Join(dir, "nope.snapshot"), nil},
		{"missing base dir", filepath.Join(dir, "nope", "*.snapshot"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Find(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindInvalidPattern(t *testing.T) {
	_, err := Find(t.TempDir() + "/[*.snapshot")
	assert.Error(t, err)
}

func newReader(t *testing.T) (*Reader, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	codec, err := serialization.NewSonic(serialization.WithTypes(errdigest.Digest{}))
	require.NoError(t, err)
	t.Cleanup(codec.Close)

	var out, errOut bytes.Buffer
	return NewReader(codec, &out, &errOut), &out, &errOut
}

func TestReaderRunSkipsBadFiles(t *testing.T) {
	dir := snapshotTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-03-02", "bad.snapshot"), []byte("garbage!"), 0o644))

	r, out, errOut := newReader(t)
	res, err := r.Run(dir)
	require.NoError(t, err)

	assert.Equal(t, Result{Matched: 4, Printed: 3, Failed: 1}, res)
	assert.Equal(t, 3, strings.Count(out.String(), "║ Method Snapshot"))
	assert.Contains(t, errOut.String(), "bad.snapshot")
	assert.Contains(t, errOut.String(), "bad magic")
}

func TestReaderRunNoMatch(t *testing.T) {
	r, _, _ := newReader(t)
	_, err := r.Run(filepath.Join(t.TempDir(), "*.snapshot"))
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestReaderRunSingleFileFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.snapshot")
	data := Marshal(&Snapshot{})
	data[7] = 9 // version 9
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, _, _ := newReader(t)
	_, err := r.Run(path)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, path, fe.Path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReaderFormat(t *testing.T) {
	r, _, _ := newReader(t)
	codec := r.codec

	long := strings.Repeat("z", 250)
	args := []any{long, nil, 42}
	frames := make([]string, 12)
	for i := range frames {
		frames[i] = "pkg.fn (f.go:1)"
	}
	digest := errdigest.Digest{Type: "*fs.PathError", Message: "open x: no such file", Frames: frames}
	digest.Trace = "*fs.PathError: open x: no such file\n" + strings.Repeat("\tat pkg.fn (f.go:1)\n", 12)
	errBytes, ok := codec.Encode(digest)
	require.True(t, ok)

	s := &Snapshot{
		CorrelationID: "20240301-120000-000-00001",
		TimestampMs:   fixedNow.UnixMilli(),
		ClassName:     "A",
		MethodName:    "run",
		ThreadName:    "main",
		DurationMs:    170.456,
		ArgTypes:      serialization.TypeNames(args),
		Args:          serialization.EncodeAll(codec, args),
		Error:         errBytes,
	}

	text := r.Format(s)

	assert.Contains(t, text, "║ ID:       20240301-120000-000-00001\n")
	assert.Contains(t, text, "║ Time:     2024-03-01 12:00:00.000 UTC\n")
	assert.Contains(t, text, "║ Method:   A.run\n")
	assert.Contains(t, text, "║ Duration: 170.46 ms\n")
	assert.Contains(t, text, "║ ⚠ Error: *fs.PathError\n")
	assert.Contains(t, text, "║   Message: open x: no such file\n")
	assert.Contains(t, text, "║     … 5 more lines\n")
	assert.Equal(t, 7, strings.Count(text, "at pkg.fn"), "header plus 7 frames fill the 8 line budget")
	assert.Contains(t, text, "║   [0] string = "+strings.Repeat("z", 200)+"...\n")
	assert.Contains(t, text, "║   [1] null = null\n")
	assert.Contains(t, text, "║   [2] int = 42\n")
}

func TestReaderFormatNoArgs(t *testing.T) {
	r, _, _ := newReader(t)
	text := r.Format(&Snapshot{ClassName: "A", MethodName: "b"})

	assert.Contains(t, text, "║   (none)\n")
	assert.NotContains(t, text, "ID:")
	assert.NotContains(t, text, "Error")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, "short", FormatValue("short"))
	assert.Equal(t, strings.Repeat("é", 200)+"...", FormatValue(strings.Repeat("é", 201)))
	assert.Equal(t, strings.Repeat("a", 200), FormatValue(strings.Repeat("a", 200)))
}
