package logging

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits a recurring diagnostic such as "queue full" so that a
// burst of identical failures produces a handful of log lines instead of one
// per event. Suppressed occurrences are counted and reported with the next
// allowed line.
type Throttle struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewThrottle allows burst lines immediately and then one line per interval.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Allow reports whether a line may be logged now. When it may, it also returns
// how many lines were suppressed since the last allowed one.
func (t *Throttle) Allow() (bool, int64) {
	if t.limiter.Allow() {
		return true, t.suppressed.Swap(0)
	}
	t.suppressed.Add(1)
	return false, 0
}
