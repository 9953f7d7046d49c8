package sysmonit

import "time"

// t0 returns a fixed reference time for deterministic counting tests.
func t0() time.Time {
	return time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
}

// ttlForTest is a short TTL used to exercise ExpireStale without waiting
// on real track-TTL durations.
func ttlForTest() time.Duration {
	return time.Second
}
