// Package usecase implements the market data acquisition engine: cache-first
// reads over the bar store with provider backfill on coverage misses.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradinghub/internal/feature/marketdata/domain"
	"tradinghub/internal/feature/marketdata/domain/entity"
)

// BarRepository abstracts the persistent bar store.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type BarRepository interface {
	// UpsertBatch inserts or overwrites bars for the keyed series and
	// returns the number of rows written. Re-fetched bars must update in
	// place, never duplicate.
	UpsertBatch(ctx context.Context, key entity.InstrumentKey, bars []entity.Bar) (int, error)

	// ReadRange returns the series' bars within [start, end] inclusive,
	// ordered by timestamp ascending. No rows is an empty slice, not an
	// error.
	ReadRange(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error)
}

// MarketGateway abstracts the provider protocol client for one chunk fetch.
// Implementations own session lifecycle (connect, settle, disconnect).
type MarketGateway interface {
	// FetchPriceSeries fetches traded price bars for the instrument,
	// anchored at end and reaching back over the provider duration
	// descriptor.
	FetchPriceSeries(ctx context.Context, key entity.InstrumentKey, end time.Time, duration string) ([]entity.Bar, error)

	// FetchOptionSeries fetches the option's traded price bars together
	// with the underlying's implied-volatility bars. The two streams are
	// independently sampled and unmerged.
	FetchOptionSeries(ctx context.Context, key entity.InstrumentKey, end time.Time, duration string) (prices, ivs []entity.Bar, err error)
}

// PacingLimiter paces successive provider requests. Waits must be
// cancellable; the engine never busy-polls.
type PacingLimiter interface {
	Wait(ctx context.Context) error
}

// Options tunes the acquisition engine.
type Options struct {
	ToleranceDays   int // coverage gap tolerance; default DefaultToleranceDays
	MaxLookbackDays int // provider lookback cap; default DefaultMaxLookbackDays
	RefreshDays     int // span refetched by Refresh; default DefaultRefreshDays
}

// DefaultRefreshDays keeps the buffered refresh request at a "1 Y" provider
// duration. Longer requests hit gateway timeouts far more often.
const DefaultRefreshDays = 300

func (o Options) withDefaults() Options {
	if o.ToleranceDays <= 0 {
		o.ToleranceDays = DefaultToleranceDays
	}
	if o.MaxLookbackDays <= 0 {
		o.MaxLookbackDays = DefaultMaxLookbackDays
	}
	if o.RefreshDays <= 0 {
		o.RefreshDays = DefaultRefreshDays
	}
	return o
}

// RefreshResult reports the outcome of a manual refresh.
type RefreshResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DataStatus describes store coverage for a series and range.
type DataStatus struct {
	Symbol        string     `json:"symbol"`
	HasData       bool       `json:"has_data"`
	RecordCount   int        `json:"record_count"`
	CoverageStart *time.Time `json:"coverage_start,omitempty"`
	CoverageEnd   *time.Time `json:"coverage_end,omitempty"`
}

// AcquisitionUsecase answers bar-range queries store-first and drives the
// provider protocol to backfill on coverage misses.
type AcquisitionUsecase struct {
	bars    BarRepository
	gateway MarketGateway
	limiter PacingLimiter
	filter  SettlementFilter
	opts    Options
	log     *slog.Logger
}

// NewAcquisitionUsecase wires the acquisition engine. limiter and filter may
// be nil: pacing is skipped and the default settlement heuristic is used.
func NewAcquisitionUsecase(bars BarRepository, gateway MarketGateway, limiter PacingLimiter, filter SettlementFilter, opts Options, log *slog.Logger) *AcquisitionUsecase {
	if log == nil {
		log = slog.Default()
	}
	if filter == nil {
		filter = TimestampIntersectionFilter{}
	}
	return &AcquisitionUsecase{
		bars:    bars,
		gateway: gateway,
		limiter: limiter,
		filter:  filter,
		opts:    opts.withDefaults(),
		log:     log,
	}
}

// GetRange returns the series' bars for [start, end]. The store is consulted
// first; when its coverage satisfies the range within tolerance the stored
// slice is returned with no provider contact. Otherwise the span is fetched
// chunk by chunk, persisted, and the store re-read so the response and the
// cache always agree.
func (a *AcquisitionUsecase) GetRange(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("get range for %s: %w", key, domain.ErrInvalidRange)
	}

	stored, err := a.bars.ReadRange(ctx, key, start, end)
	if err != nil {
		return nil, fmt.Errorf("read %s [%s..%s]: %w", key, fdate(start), fdate(end), err)
	}

	if len(stored) > 0 &&
		isCovered(stored[0].Time, stored[len(stored)-1].Time, start, end, a.opts.ToleranceDays) {
		a.log.Debug("coverage hit", "instrument", key.String(), "bars", len(stored))
		return stored, nil
	}

	a.log.Info("coverage miss, fetching from provider",
		"instrument", key.String(), "start", fdate(start), "end", fdate(end), "cached", len(stored))

	if err := a.fetchAndStore(ctx, key, start, end, len(stored) == 0); err != nil {
		return nil, err
	}

	bars, err := a.bars.ReadRange(ctx, key, start, end)
	if err != nil {
		return nil, fmt.Errorf("re-read %s [%s..%s]: %w", key, fdate(start), fdate(end), err)
	}
	return bars, nil
}

// fetchAndStore plans the span, fetches every chunk oldest-first and upserts
// each chunk's bars. A chunk failure aborts the remaining plan; bars from
// chunks already persisted stay persisted.
func (a *AcquisitionUsecase) fetchAndStore(ctx context.Context, key entity.InstrumentKey, start, end time.Time, expectEmptyStore bool) error {
	plan, err := planFetch(start, end, a.opts.MaxLookbackDays)
	if err != nil {
		return err
	}

	persisted := 0
	for i, chunk := range plan.Chunks {
		if i > 0 && a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("pacing before chunk %d/%d: %w", i+1, len(plan.Chunks), err)
			}
		}

		bars, err := a.fetchChunk(ctx, key, chunk)
		if err != nil {
			return fmt.Errorf("fetch %s chunk %d/%d [%s..%s]: %w",
				key, i+1, len(plan.Chunks), fdate(chunk.Start), fdate(chunk.End), err)
		}

		if len(bars) == 0 {
			// A clean empty chunk is fine on its own: the span may reach
			// back before the instrument existed.
			continue
		}

		count, err := a.bars.UpsertBatch(ctx, key, bars)
		if err != nil {
			return fmt.Errorf("persist %s chunk %d/%d: %w", key, i+1, len(plan.Chunks), err)
		}
		persisted += count
		a.log.Info("chunk persisted",
			"instrument", key.String(), "chunk", i+1, "chunks", len(plan.Chunks), "bars", count)
	}

	// Only a fully empty fetch into an empty store means the instrument has
	// no data at all.
	if expectEmptyStore && persisted == 0 {
		return fmt.Errorf("fetch %s: %w", key, domain.ErrNoData)
	}
	return nil
}

// fetchChunk fetches one chunk: a single price stream for equity and index
// series, or the merged price+volatility streams for options.
func (a *AcquisitionUsecase) fetchChunk(ctx context.Context, key entity.InstrumentKey, chunk fetchChunk) ([]entity.Bar, error) {
	if !key.IsOption() {
		return a.gateway.FetchPriceSeries(ctx, key, chunk.End, chunk.Duration)
	}

	prices, ivs, err := a.gateway.FetchOptionSeries(ctx, key, chunk.End, chunk.Duration)
	if err != nil {
		return nil, err
	}
	return mergeOptionSeries(prices, ivs, a.filter, a.log), nil
}

// Refresh force-refetches roughly the last year of daily bars for a symbol,
// regardless of current coverage. Used by the manual refresh endpoint and
// the nightly scheduler.
func (a *AcquisitionUsecase) Refresh(ctx context.Context, symbol string) RefreshResult {
	key := entity.InstrumentKey{Symbol: symbol, Interval: entity.IntervalDaily}

	// Anchor at yesterday: while the market is open today's close does not
	// exist yet.
	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -a.opts.RefreshDays)

	if err := a.fetchAndStore(ctx, key, start, end, false); err != nil {
		a.log.Error("refresh failed", "symbol", symbol, "error", err)
		return RefreshResult{
			Success:   false,
			Message:   fmt.Sprintf("Data refresh failed for %s: %v", symbol, err),
			Timestamp: time.Now().UTC(),
		}
	}
	return RefreshResult{
		Success:   true,
		Message:   fmt.Sprintf("Data refresh successful for %s", symbol),
		Timestamp: time.Now().UTC(),
	}
}

// Status reports what the store holds for a series inside [start, end]. It
// never contacts the provider.
func (a *AcquisitionUsecase) Status(ctx context.Context, key entity.InstrumentKey, start, end time.Time) (DataStatus, error) {
	bars, err := a.bars.ReadRange(ctx, key, start, end)
	if err != nil {
		return DataStatus{}, fmt.Errorf("status %s: %w", key, err)
	}

	st := DataStatus{Symbol: key.Symbol, RecordCount: len(bars)}
	if len(bars) > 0 {
		st.HasData = true
		first := bars[0].Time
		last := bars[len(bars)-1].Time
		st.CoverageStart = &first
		st.CoverageEnd = &last
	}
	return st, nil
}

func fdate(t time.Time) string { return t.Format("2006-01-02") }
