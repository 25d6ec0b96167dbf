// Package trigger decides whether an invocation or a whole trace is
// interesting enough to keep.
//
// The same rule is applied at two granularities: per node (should this
// invocation be snapshotted) and per tree (should the whole trace be
// rendered). A slow leaf does not force its tree to render unless the tree's
// own policy also fires.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Evaluate returns true when an invocation of the given duration, with or
// without a captured error, satisfies the trigger.
//
// A policy with both conditions switched off is a misconfiguration; it fires
// rather than silently never firing.
func Evaluate(onTimeout, onException bool, threshold, duration time.Duration, hasError bool) bool {
	if !onTimeout && !onException {
		return true
	}
	return (onTimeout && duration >= threshold) || (onException && hasError)
}

// Policy is the trigger configuration for one mode (flat or tree).
type Policy struct {
	OnTimeout   bool
	OnException bool
	Threshold   time.Duration
}

// Fires applies Evaluate with the policy's settings.
func (p Policy) Fires(duration time.Duration, hasError bool) bool {
	return Evaluate(p.OnTimeout, p.OnException, p.Threshold, duration, hasError)
}

// String renders the trigger part of the policy the way it is configured.
func (p Policy) String() string {
	switch {
	case p.OnTimeout && p.OnException:
		return "both"
	case p.OnException:
		return "exception"
	default:
		return "timeout"
	}
}

// Parse builds a Policy from a trigger expression and a threshold in
// milliseconds. Accepted expressions are "timeout", "exception", "both", or a
// comma separated combination. An expression naming neither condition
// defaults to "timeout".
func Parse(expr string, thresholdMs int64) (Policy, error) {
	if thresholdMs < 0 {
		return Policy{}, fmt.Errorf("trigger: negative threshold %dms", thresholdMs)
	}

	p := Policy{Threshold: time.Duration(thresholdMs) * time.Millisecond}
	for _, part := range strings.Split(strings.ToLower(expr), ",") {
		switch strings.TrimSpace(part) {
		case "timeout":
			p.OnTimeout = true
		case "exception", "error":
			p.OnException = true
		case "both":
			p.OnTimeout = true
			p.OnException = true
		case "":
		default:
			return Policy{}, fmt.Errorf("trigger: unknown condition %q", part)
		}
	}

	if !p.OnTimeout && !p.OnException {
		p.OnTimeout = true
	}
	return p, nil
}

// MustParse is Parse for static configuration; it panics on error.
func MustParse(expr string, thresholdMs int64) Policy {
	p, err := Parse(expr, thresholdMs)
	if err != nil {
		panic(err)
	}
	return p
}
