// Package clock provides monotonic millisecond timekeeping for the
// real-time thread and everything it drives. Never use wall-clock time
// for deadlines or ordering.
package clock

import "time"

// processStart is captured once at package init. time.Time carries a
// monotonic reading alongside the wall clock, so Since(processStart) never
// observes clock adjustments (NTP step, DST, manual changes).
var processStart = time.Now()

// SteadyNowMS returns the number of milliseconds elapsed since process
// start, monotonic and never decreasing.
func SteadyNowMS() int64 {
	return time.Since(processStart).Milliseconds()
}

// SleepMS sleeps for n milliseconds.
func SleepMS(n int64) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}

// SecToMS converts whole seconds to milliseconds.
func SecToMS(n int64) int64 {
	return n * 1000
}
