package usecase

import "time"

// DefaultToleranceDays is the coverage gap tolerance for daily series.
// Trading calendars contain weekends and holidays the store legitimately
// cannot hold, so a cached range may start a few days after (or end a few
// days before) the requested range and still satisfy it. The value was
// measured against US equity calendars; it is configurable per usecase.
const DefaultToleranceDays = 5

// isCovered reports whether the stored range [cachedStart, cachedEnd]
// satisfies the requested range [reqStart, reqEnd] within toleranceDays.
//
// startGap is how many days the cache starts after the request; endGap is how
// many days the cache ends before it. Both gaps must stay within
// [-toleranceDays, +toleranceDays]. An empty cached range is never covered.
func isCovered(cachedStart, cachedEnd, reqStart, reqEnd time.Time, toleranceDays int) bool {
	if cachedStart.IsZero() || cachedEnd.IsZero() {
		return false
	}

	tol := float64(toleranceDays)
	startGap := cachedStart.Sub(reqStart).Hours() / 24
	endGap := reqEnd.Sub(cachedEnd).Hours() / 24

	return startGap >= -tol && startGap <= tol && endGap >= -tol && endGap <= tol
}
