/*
Package snapshot captures, persists and reads back invocation snapshots.

A snapshot records one interesting invocation: its correlation ID, class and
method, goroutine name, duration, serialized arguments and serialized error
digest. Snapshots are written one per file:

	{dir}/{yyyy-MM-dd}/{correlationId}.snapshot

The date is the UTC day of the snapshot timestamp.

# Record format

All integers are big-endian. Text is a uint16 byte length followed by UTF-8.

	magic "MTSS" | version int32
	correlationId text (empty if absent)
	timestampMs int64 | className text | methodName text | threadName text | durationMs float64
	argTypeCount int32, then argTypeCount x text
	argCount int32, then argCount x [len int32 (-1 = null), bytes]
	errorLen int32 (-1 = absent), then bytes

Decoding checks magic and version first and rejects anything else with
ErrBadMagic or ErrUnsupportedVersion.

# Pipeline

Capturer builds snapshots on the instrumented goroutine and hands them to a
Writer, whose single background worker encodes (in async mode), writes
atomically via a temp file and rename, and sweeps expired day directories.
Nothing in this path returns an error to the instrumented code: failures are
logged, counted and the snapshot is dropped.
*/
package snapshot
