package usecase

import (
	"log/slog"

	"tradinghub/internal/feature/marketdata/domain/entity"
)

// SettlementFilter decides which bars in an option price stream represent
// real trading activity. The provider's price stream includes market-close
// auction snapshots (O=H=L=C, near-zero volume) that are not trades and must
// not reach the store. The filter is an interface because the default
// strategy is an observed heuristic, not a documented provider guarantee.
type SettlementFilter interface {
	Filter(prices, ivs []entity.Bar) []entity.Bar
}

// TimestampIntersectionFilter retains only price bars whose timestamp also
// appears in the volatility stream. Volatility sampling skips the
// settlement-only snapshots, so timestamp membership separates real trades
// from auction artifacts.
type TimestampIntersectionFilter struct{}

// Filter returns the price bars whose timestamps are present in ivs.
func (TimestampIntersectionFilter) Filter(prices, ivs []entity.Bar) []entity.Bar {
	sampled := make(map[int64]struct{}, len(ivs))
	for _, iv := range ivs {
		sampled[iv.Time.Unix()] = struct{}{}
	}

	out := make([]entity.Bar, 0, len(prices))
	for _, p := range prices {
		if _, ok := sampled[p.Time.Unix()]; ok {
			out = append(out, p)
		}
	}
	return out
}

// mergeOptionSeries joins an option price stream with the underlying's
// implied-volatility stream. Price bars are first passed through the
// settlement filter, then left-joined with volatility values by exact
// timestamp. The two streams arrive from independent requests in no
// guaranteed order, so the join works purely on timestamps.
//
// After filtering, every retained bar should find a volatility sample; a bar
// that does not is kept with nil IV and logged as a data-quality warning
// rather than treated as an error.
func mergeOptionSeries(prices, ivs []entity.Bar, filter SettlementFilter, log *slog.Logger) []entity.Bar {
	if filter == nil {
		filter = TimestampIntersectionFilter{}
	}

	byTime := make(map[int64]float64, len(ivs))
	for _, iv := range ivs {
		byTime[iv.Time.Unix()] = iv.Close
	}

	retained := filter.Filter(prices, ivs)

	merged := make([]entity.Bar, 0, len(retained))
	missing := 0
	for _, p := range retained {
		if v, ok := byTime[p.Time.Unix()]; ok {
			vv := v
			p.IV = &vv
		} else {
			missing++
		}
		merged = append(merged, p)
	}

	if missing > 0 && log != nil {
		log.Warn("option bars retained without a volatility sample",
			"missing", missing, "retained", len(retained))
	}
	return merged
}
