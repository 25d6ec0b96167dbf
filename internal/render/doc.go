// Package render turns closed call trees and flat lines into text and
// writes it to a sink from a dedicated goroutine.
//
// The render queue is separate from the snapshot queue, so a slow log sink
// never delays persistence. Every rendered trace also feeds Stats, which
// reports mean and percentile durations per entry method.
package render
