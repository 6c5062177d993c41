package usecase

import (
	"fmt"
	"math"
	"time"

	"tradinghub/internal/feature/marketdata/domain"
)

const (
	// DefaultMaxLookbackDays is the longest span the provider serves in a
	// single historical request (20 years for daily bars).
	DefaultMaxLookbackDays = 7300

	// chunkWindowDays is the fixed window used when a span exceeds the
	// maximum lookback and must be split (10-year windows).
	chunkWindowDays = 3650

	// durationBuffer is applied to a span before rounding it up to a
	// provider duration bucket, so calendar gaps at the edges of the span do
	// not leave the first or last trading days uncovered.
	durationBuffer = 1.2
)

// fetchChunk is one provider-sized request window within a fetch plan.
type fetchChunk struct {
	Start    time.Time
	End      time.Time
	Duration string // provider duration descriptor, e.g. "6 M", "10 Y"
}

// fetchPlan is an ordered list of contiguous, non-overlapping chunks covering
// a requested span, oldest first.
type fetchPlan struct {
	Chunks []fetchChunk
}

// planFetch converts a requested date span into provider-sized fetch windows.
// Spans within maxLookbackDays become a single chunk; longer spans are split
// into fixed 10-year windows, each boundary advanced by one day so windows do
// not overlap. A degenerate range is rejected before any I/O.
func planFetch(start, end time.Time, maxLookbackDays int) (fetchPlan, error) {
	if end.Before(start) {
		return fetchPlan{}, fmt.Errorf("plan %s..%s: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"), domain.ErrInvalidRange)
	}
	if maxLookbackDays <= 0 {
		maxLookbackDays = DefaultMaxLookbackDays
	}

	spanDays := daysBetween(start, end)
	if spanDays <= maxLookbackDays {
		return fetchPlan{Chunks: []fetchChunk{{
			Start:    start,
			End:      end,
			Duration: durationForDays(spanDays),
		}}}, nil
	}

	var chunks []fetchChunk
	cur := start
	for !cur.After(end) {
		chunkEnd := cur.AddDate(0, 0, chunkWindowDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, fetchChunk{
			Start:    cur,
			End:      chunkEnd,
			Duration: durationForDays(daysBetween(cur, chunkEnd)),
		})
		cur = chunkEnd.AddDate(0, 0, 1)
	}

	return fetchPlan{Chunks: chunks}, nil
}

// durationForDays rounds a span in days up to the nearest duration bucket the
// provider accepts, after applying the calendar buffer. Short spans are
// expressed in days directly.
func durationForDays(days int) string {
	if days < 1 {
		days = 1
	}
	buffered := int(math.Ceil(float64(days) * durationBuffer))

	switch {
	case buffered <= 5:
		return fmt.Sprintf("%d D", buffered)
	case buffered <= 30:
		return "1 M"
	case buffered <= 90:
		return "3 M"
	case buffered <= 180:
		return "6 M"
	case buffered <= 365:
		return "1 Y"
	case buffered <= 730:
		return "2 Y"
	case buffered <= 1825:
		return "5 Y"
	case buffered <= 3650:
		return "10 Y"
	default:
		return "20 Y"
	}
}

// daysBetween returns the whole number of days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
