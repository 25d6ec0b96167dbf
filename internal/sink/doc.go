// Package sink delivers rendered traces and flat lines to their readers.
//
// Console writes straight to stdout. File batches writes on a background
// goroutine into method-probe-YYYY-MM-DD.log, rolling at UTC midnight.
// Hub streams to websocket clients. Multi combines them.
package sink
