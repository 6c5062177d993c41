// Package ibkr adapts the low-level gateway protocol client to the
// marketdata usecase's MarketGateway interface: one session per chunk fetch,
// with the option and equity flows kept on distinct client identities.
package ibkr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradinghub/internal/feature/marketdata/domain/entity"
	"tradinghub/internal/feature/marketdata/usecase"
	"tradinghub/internal/platform/ibgateway"
)

// indexExchanges routes known index symbols to their native exchange instead
// of SMART; everything else is treated as an equity.
var indexExchanges = map[string]string{
	"VIX": "CBOE",
}

// Market implements usecase.MarketGateway against an IB-style data gateway.
type Market struct {
	gw  *ibgateway.Gateway
	cfg ibgateway.Config
	log *slog.Logger
}

var _ usecase.MarketGateway = (*Market)(nil)

// NewMarket creates a Market over the given gateway factory.
func NewMarket(gw *ibgateway.Gateway, cfg ibgateway.Config, log *slog.Logger) *Market {
	if log == nil {
		log = slog.Default()
	}
	return &Market{gw: gw, cfg: cfg, log: log}
}

// FetchPriceSeries fetches traded price bars for an equity or index series
// over a fresh session under the equity client identity.
func (m *Market) FetchPriceSeries(ctx context.Context, key entity.InstrumentKey, end time.Time, duration string) ([]entity.Bar, error) {
	client, err := m.gw.Connect(ctx, m.cfg.ClientID)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	raw, err := client.FetchSeries(ctx, contractFor(key), endAnchor(end), duration, key.Interval, ibgateway.DataTrades)
	if err != nil {
		return nil, err
	}
	return toBars(key, raw)
}

// FetchOptionSeries fetches the option contract's traded price bars and the
// underlying's implied-volatility bars concurrently on one session under the
// option client identity. The two requests carry distinct request ids; no
// ordering between their completions is assumed.
func (m *Market) FetchOptionSeries(ctx context.Context, key entity.InstrumentKey, end time.Time, duration string) ([]entity.Bar, []entity.Bar, error) {
	client, err := m.gw.Connect(ctx, m.cfg.OptionClientID)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	type result struct {
		bars []entity.Bar
		err  error
	}

	anchor := endAnchor(end)
	priceCh := make(chan result, 1)
	ivCh := make(chan result, 1)

	go func() {
		raw, err := client.FetchSeries(ctx,
			ibgateway.Option(key.Symbol, key.Strike, string(key.Right), key.Expiration),
			anchor, duration, key.Interval, ibgateway.DataTrades)
		if err != nil {
			priceCh <- result{err: fmt.Errorf("option trades: %w", err)}
			return
		}
		bars, err := toBars(key, raw)
		priceCh <- result{bars: bars, err: err}
	}()

	go func() {
		// Volatility is sampled from the underlying equity, not the
		// contract itself.
		raw, err := client.FetchSeries(ctx,
			ibgateway.Stock(key.Symbol),
			anchor, duration, key.Interval, ibgateway.DataImpliedVol)
		if err != nil {
			ivCh <- result{err: fmt.Errorf("implied volatility: %w", err)}
			return
		}
		bars, err := toBars(key, raw)
		ivCh <- result{bars: bars, err: err}
	}()

	prices := <-priceCh
	ivs := <-ivCh
	if prices.err != nil {
		return nil, nil, prices.err
	}
	if ivs.err != nil {
		return nil, nil, ivs.err
	}
	return prices.bars, ivs.bars, nil
}

// Probe verifies gateway connectivity by opening and immediately closing a
// session under the equity client identity.
func (m *Market) Probe(ctx context.Context) error {
	client, err := m.gw.Connect(ctx, m.cfg.ClientID)
	if err != nil {
		return err
	}
	return client.Close()
}

// contractFor maps an instrument key to a gateway contract descriptor.
func contractFor(key entity.InstrumentKey) ibgateway.Contract {
	if key.IsOption() {
		return ibgateway.Option(key.Symbol, key.Strike, string(key.Right), key.Expiration)
	}
	if ex, ok := indexExchanges[key.Symbol]; ok || key.SecType == ibgateway.SecTypeIndex {
		if ex == "" {
			ex = "CBOE"
		}
		return ibgateway.Index(key.Symbol, ex)
	}
	return ibgateway.Stock(key.Symbol)
}

// endAnchor renders a concrete end timestamp for the request, or empty
// ("up to now") when the end falls on or after today.
func endAnchor(end time.Time) string {
	if !end.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return ""
	}
	return end.Format("20060102") + " 23:59:59"
}

// toBars converts raw wire bars into domain bars, stamping the series
// identity onto each one.
func toBars(key entity.InstrumentKey, raw []ibgateway.RawBar) ([]entity.Bar, error) {
	bars := make([]entity.Bar, 0, len(raw))
	for _, rb := range raw {
		ts, err := parseBarDate(rb.Date)
		if err != nil {
			return nil, err
		}
		bars = append(bars, entity.Bar{
			Symbol:   key.Symbol,
			Interval: key.Interval,
			Time:     ts,
			Open:     rb.Open,
			High:     rb.High,
			Low:      rb.Low,
			Close:    rb.Close,
			Volume:   rb.Volume,
		})
	}
	return bars, nil
}

// parseBarDate handles the gateway's two date renderings: "20060102" for
// daily bars and "20060102  15:04:05" for intraday bars. The intraday form
// separates date and time with a double space.
func parseBarDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, " ") {
		normalized := strings.Join(strings.Fields(s), " ")
		ts, err := time.Parse("20060102 15:04:05", normalized)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse bar date %q: %w", s, err)
		}
		return ts.UTC(), nil
	}
	ts, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bar date %q: %w", s, err)
	}
	return ts.UTC(), nil
}
