/*
Package serialization provides best-effort encoding of captured argument and
error values.

Every value is wrapped in a small JSON envelope carrying its Go type name so
that registered types decode back to the exact type they were captured as:

	{"t":"int","v":42}

Failures never reach the caller. A value that cannot be marshalled, or whose
encoding exceeds the configured size cap, yields an absent slot and a
throttled diagnostic.
*/
package serialization
