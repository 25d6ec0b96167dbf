package snapshot

import "time"

// Ext is the file extension of snapshot files.
const Ext = ".snapshot"

// Snapshot is one persisted invocation.
type Snapshot struct {
	CorrelationID string
	TimestampMs   int64
	ClassName     string
	MethodName    string
	ThreadName    string
	DurationMs    float64

	// ArgTypes and Args are parallel; a nil Args slot is an absent value.
	ArgTypes []string
	Args     [][]byte

	// Error holds the serialized error digest, nil when there was none.
	Error []byte
}

// FullMethodName returns "Class.method".
func (s *Snapshot) FullMethodName() string {
	return s.ClassName + "." + s.MethodName
}

// Time returns the snapshot timestamp in UTC.
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.TimestampMs).UTC()
}

// Day returns the UTC day directory name of the snapshot.
func (s *Snapshot) Day() string {
	return s.Time().Format(dayLayout)
}

const dayLayout = "2006-01-02"
