package cache

import "time"

// Clock provides monotonic and wall time to the cache. Overriding it in
// tests avoids TTL flakiness (teacher precedent: cache/cache_test.go's
// fakeClock). Nil (the default) falls back to time.Now().
type Clock interface {
	// NowMonotonic returns a monotonically increasing nanosecond count used
	// for all expiry math. It need not relate to wall-clock time.
	NowMonotonic() int64
	// NowWall returns the current wall-clock time in Unix milliseconds,
	// used only for reporting entry age — never for expiry (spec §3).
	NowWall() int64
}

// systemClock is the default Clock backed by time.Now().
type systemClock struct{}

// clockBase anchors systemClock's monotonic readings: time.Since uses the
// monotonic clock reading that time.Now() records, so wall-clock steps do not
// move it.
var clockBase = time.Now()

func (systemClock) NowMonotonic() int64 { return int64(time.Since(clockBase)) }
func (systemClock) NowWall() int64      { return time.Now().UnixNano() / int64(time.Millisecond) }
