package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// DefaultMaxSize caps a single encoded value at 1 MiB.
const DefaultMaxSize = 1 << 20

// NullType is the type name recorded for nil values.
const NullType = "null"

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Codec encodes and decodes individual values. Both directions report
// absence with a false second return instead of an error.
type Codec interface {
	Encode(v any) ([]byte, bool)
	Decode(data []byte) (any, bool)
}

// FailureHook observes dropped values. reason is "marshal", "size" or "decode".
type FailureHook func(reason string)

type envelope struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

// Sonic is the default Codec, backed by bytedance/sonic.
type Sonic struct {
	api           sonic.API
	maxSize       int
	compressAbove int
	types         map[string]reflect.Type
	encoder       *zstd.Encoder
	decoder       *zstd.Decoder
	logger        *logging.Logger
	throttle      *logging.Throttle
	onFailure     FailureHook
}

// Option configures a Sonic codec
type Option func(*Sonic)

// WithMaxSize sets the size cap in bytes; zero or negative disables it.
func WithMaxSize(n int) Option {
	return func(s *Sonic) { s.maxSize = n }
}

// WithCompression compresses encodings of at least n bytes with zstd.
// Zero disables compression.
func WithCompression(n int) Option {
	return func(s *Sonic) { s.compressAbove = n }
}

// WithTypes registers additional concrete types for exact round trips.
func WithTypes(samples ...any) Option {
	return func(s *Sonic) {
		for _, v := range samples {
			if v == nil {
				continue
			}
			t := reflect.TypeOf(v)
			s.types[t.String()] = t
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Sonic) { s.logger = l }
}

// WithFailureHook registers a callback for dropped values.
func WithFailureHook(fn FailureHook) Option {
	return func(s *Sonic) { s.onFailure = fn }
}

// NewSonic creates a codec with the default size cap and builtin types.
func NewSonic(opts ...Option) (*Sonic, error) {
	s := &Sonic{
		api:      sonic.ConfigStd,
		maxSize:  DefaultMaxSize,
		types:    builtinTypes(),
		throttle: logging.NewThrottle(time.Second, 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("serialization")

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	s.decoder = dec

	if s.compressAbove > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.encoder = enc
	}
	return s, nil
}

// Encode wraps v in a typed envelope. nil, including a typed nil pointer,
// map or slice, yields absent without a diagnostic.
func (s *Sonic) Encode(v any) (out []byte, ok bool) {
	if IsNil(v) {
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			s.fail("marshal", TypeName(v), fmt.Errorf("panic: %v", r))
			out, ok = nil, false
		}
	}()

	raw, err := s.api.Marshal(v)
	if err != nil {
		s.fail("marshal", TypeName(v), err)
		return nil, false
	}

	out, err = s.api.Marshal(envelope{T: TypeName(v), V: raw})
	if err != nil {
		s.fail("marshal", TypeName(v), err)
		return nil, false
	}

	if s.maxSize > 0 && len(out) > s.maxSize {
		s.fail("size", TypeName(v), fmt.Errorf("encoded size %d exceeds cap %d", len(out), s.maxSize))
		return nil, false
	}

	if s.encoder != nil && len(out) >= s.compressAbove {
		out = s.encoder.EncodeAll(out, make([]byte, 0, len(out)/2))
	}
	return out, true
}

// Decode restores a value. Registered types come back as themselves, anything
// else as the generic JSON shape (map[string]any, []any, float64...).
func (s *Sonic) Decode(data []byte) (any, bool) {
	if len(data) == 0 {
		return nil, false
	}

	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := s.decoder.DecodeAll(data, nil)
		if err != nil {
			s.fail("decode", "", err)
			return nil, false
		}
		data = plain
	}

	var env envelope
	if err := s.api.Unmarshal(data, &env); err != nil {
		s.fail("decode", "", err)
		return nil, false
	}
	if env.T == NullType || len(env.V) == 0 {
		return nil, false
	}

	if t, ok := s.types[env.T]; ok {
		ptr := reflect.New(t)
		if err := s.api.Unmarshal(env.V, ptr.Interface()); err != nil {
			s.fail("decode", env.T, err)
			return nil, false
		}
		return ptr.Elem().Interface(), true
	}

	var out any
	if err := s.api.Unmarshal(env.V, &out); err != nil {
		s.fail("decode", env.T, err)
		return nil, false
	}
	return out, true
}

// Close releases the zstd coders.
func (s *Sonic) Close() {
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	s.decoder.Close()
}

func (s *Sonic) fail(reason, typeName string, err error) {
	if s.onFailure != nil {
		s.onFailure(reason)
	}
	if ok, suppressed := s.throttle.Allow(); ok {
		s.logger.Warn("value not serialized",
			zap.String("reason", reason),
			zap.String("type", typeName),
			zap.Int64("suppressed", suppressed),
			zap.Error(err),
		)
	}
}

// TypeName returns the Go type name recorded for v, or NullType for nil.
func TypeName(v any) string {
	if IsNil(v) {
		return NullType
	}
	return fmt.Sprintf("%T", v)
}

// IsNil reports whether v is nil or a nil pointer, map, slice, interface,
// func or channel.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// TypeNames returns one type name per argument, keeping nil positions.
func TypeNames(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = TypeName(a)
	}
	return out
}

// EncodeAll encodes each argument, leaving a nil slot where a value is
// absent so indexes stay aligned with TypeNames.
func EncodeAll(c Codec, args []any) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		if b, ok := c.Encode(a); ok {
			out[i] = b
		}
	}
	return out
}

// DecodeAll is the inverse of EncodeAll; absent slots decode to nil.
func DecodeAll(c Codec, blobs [][]byte) []any {
	out := make([]any, len(blobs))
	for i, b := range blobs {
		if v, ok := c.Decode(b); ok {
			out[i] = v
		}
	}
	return out
}

func builtinTypes() map[string]reflect.Type {
	samples := []any{
		"", false,
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0),
		[]byte(nil), []string(nil), []int(nil), []int64(nil), []float64(nil), []any(nil),
		map[string]any(nil), map[string]string(nil), map[string]int(nil),
		time.Time{}, time.Duration(0),
	}
	types := make(map[string]reflect.Type, len(samples))
	for _, v := range samples {
		types[TypeName(v)] = reflect.TypeOf(v)
	}
	return types
}
