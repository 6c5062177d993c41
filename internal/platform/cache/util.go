package cache

import (
	"time"
)

// TimeUntilNextMarketRollover returns the duration until the next daily bar
// rollover, shortly after the US market close (16:30 Eastern). Cached ranges
// ending "today" go stale once a new settlement bar exists, so daily entries
// should expire at that boundary.
func TimeUntilNextMarketRollover() time.Duration {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)

	rollover := time.Date(now.Year(), now.Month(), now.Day(), 16, 30, 0, 0, loc)

	if now.After(rollover) {
		rollover = rollover.Add(24 * time.Hour)
	}

	return rollover.Sub(now)
}
