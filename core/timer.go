package core

import "time"

// Clock returns the value reported as uptime in status replies
type Clock func() uint32

// MillisSince returns a Clock counting milliseconds from start. The counter
// wraps after about 49.7 days.
func MillisSince(start time.Time) Clock {
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

// FixedClock returns a Clock that always reports v
func FixedClock(v uint32) Clock {
	return func() uint32 { return v }
}
