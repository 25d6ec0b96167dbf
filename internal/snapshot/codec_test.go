package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Snapshot {
	return &Snapshot{
		CorrelationID: "20240301-120000-123-00042",
		TimestampMs:   1709294400123,
		ClassName:     "orders.Service",
		MethodName:    "Place",
		ThreadName:    "worker-7",
		DurationMs:    152.75,
		ArgTypes:      []string{"string", "null"},
		Args:          [][]byte{[]byte(`{"t":"string","v":"x"}`), nil},
		Error:         []byte("digest"),
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := sample()

	out, err := Unmarshal(Marshal(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRoundTripArgumentsThroughCodec(t *testing.T) {
	codec, err := serialization.NewSonic()
	require.NoError(t, err)
	defer codec.Close()

	args := []any{"x", nil, 42}
	in := &Snapshot{
		ClassName:  "A",
		MethodName: "run",
		ArgTypes:   serialization.TypeNames(args),
		Args:       serialization.EncodeAll(codec, args),
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in))
	out, err := Read(&buf)
	require.NoError(t, err)

	require.Len(t, out.Args, 3)
	assert.Nil(t, out.Args[1], "null position preserved")
	assert.Len(t, out.ArgTypes, len(out.Args))
	assert.Equal(t, args, serialization.DecodeAll(codec, out.Args))
	assert.Empty(t, out.CorrelationID)
	assert.Nil(t, out.Error)
}

func TestEmptyBlobDistinctFromNull(t *testing.T) {
	in := &Snapshot{ArgTypes: []string{"[]uint8"}, Args: [][]byte{{}}}

	out, err := Unmarshal(Marshal(in))
	require.NoError(t, err)
	require.Len(t, out.Args, 1)
	assert.NotNil(t, out.Args[0])
	assert.Empty(t, out.Args[0])
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	data := Marshal(sample())
	copy(data, "NOPE")

	_, err := Unmarshal(data)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = Unmarshal([]byte("MT"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestUnmarshalRejectsOtherVersions(t *testing.T) {
	for _, v := range []int32{0, 2, -1} {
		data := Marshal(sample())
		binary.BigEndian.PutUint32(data[4:8], uint32(v))

		_, err := Unmarshal(data)
		assert.ErrorIs(t, err, ErrUnsupportedVersion, "version %d", v)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	data := Marshal(sample())

	for _, n := range []int{6, 12, len(data) / 2, len(data) - 1} {
		_, err := Unmarshal(data[:n])
		assert.ErrorIs(t, err, ErrCorrupt, "cut at %d", n)
	}
}

func TestUnmarshalImplausibleCount(t *testing.T) {
	in := &Snapshot{ClassName: "A", MethodName: "b"}
	data := Marshal(in)

	// argTypeCount sits after magic, version, id, ts, class, method, thread, duration
	off := 4 + 4 + 2 + 8 + (2 + 1) + (2 + 1) + 2 + 8
	binary.BigEndian.PutUint32(data[off:], 1<<30)

	_, err := Unmarshal(data)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestTextTruncatedAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 40000) // 80000 bytes
	out, err := Unmarshal(Marshal(&Snapshot{ClassName: long}))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(out.ClassName), 65535)
	assert.True(t, strings.HasPrefix(long, out.ClassName))
	assert.Equal(t, 0, len(out.ClassName)%2, "no split rune")
}

func TestFormatError(t *testing.T) {
	err := &FormatError{Path: "/tmp/x.snapshot", Err: ErrBadMagic}
	assert.Equal(t, "/tmp/x.snapshot: snapshot: bad magic, not a snapshot file", err.Error())
	assert.True(t, errors.Is(err, ErrBadMagic))

	assert.Equal(t, ErrBadMagic.Error(), (&FormatError{Err: ErrBadMagic}).Error())
}

func TestSnapshotHelpers(t *testing.T) {
	s := sample()
	assert.Equal(t, "orders.Service.Place", s.FullMethodName())
	assert.Equal(t, "2024-03-01", s.Day())
}

func BenchmarkMarshal(b *testing.B) {
	s := sample()
	for i := 0; i < b.N; i++ {
		Marshal(s)
	}
}
