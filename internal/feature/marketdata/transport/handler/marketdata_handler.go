// Package handler provides the HTTP handlers for the marketdata feature.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradinghub/internal/api"
	"tradinghub/internal/feature/marketdata/domain"
	"tradinghub/internal/feature/marketdata/domain/entity"
	"tradinghub/internal/feature/marketdata/usecase"
)

// MarketDataUsecase defines the acquisition operations the handler needs.
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type MarketDataUsecase interface {
	GetRange(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error)
	Refresh(ctx context.Context, symbol string) usecase.RefreshResult
	Status(ctx context.Context, key entity.InstrumentKey, start, end time.Time) (usecase.DataStatus, error)
}

// GatewayProber checks provider connectivity without fetching data.
type GatewayProber interface {
	Probe(ctx context.Context) error
}

// MarketDataHandler handles HTTP requests for price and option bar series.
type MarketDataHandler struct {
	uc     MarketDataUsecase
	prober GatewayProber
}

// NewMarketDataHandler creates a new MarketDataHandler. prober may be nil if
// the connectivity probe endpoint is not mounted.
func NewMarketDataHandler(uc MarketDataUsecase, prober GatewayProber) *MarketDataHandler {
	return &MarketDataHandler{uc: uc, prober: prober}
}

// GetMarketData returns OHLCV bars for an equity or index symbol.
//
// GET /api/market-data/:symbol?start=2024-01-01&end=2024-06-01&interval=1+day
func (h *MarketDataHandler) GetMarketData(c *gin.Context) {
	key := entity.InstrumentKey{
		Symbol:   strings.ToUpper(c.Param("symbol")),
		Interval: c.DefaultQuery("interval", entity.IntervalDaily),
	}

	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	bars, err := h.uc.GetRange(c.Request.Context(), key, start, end)
	if err != nil {
		h.writeSeriesError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBarResponses(bars, false))
}

// GetOptionData returns OHLCV+IV bars for an option contract.
//
// GET /api/option-data/:symbol?strike=150&right=C&expiration=2024-06-21&start=...&end=...
func (h *MarketDataHandler) GetOptionData(c *gin.Context) {
	key, err := optionKey(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	bars, err := h.uc.GetRange(c.Request.Context(), key, start, end)
	if err != nil {
		h.writeSeriesError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBarResponses(bars, true))
}

// GetStatus reports stored coverage for a symbol without contacting the
// provider.
//
// GET /api/market-data/:symbol/status?start=...&end=...
func (h *MarketDataHandler) GetStatus(c *gin.Context) {
	key := entity.InstrumentKey{
		Symbol:   strings.ToUpper(c.Param("symbol")),
		Interval: c.DefaultQuery("interval", entity.IntervalDaily),
	}

	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	st, err := h.uc.Status(c.Request.Context(), key, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// Refresh force-refetches recent daily bars for a symbol.
//
// POST /api/market-data/:symbol/refresh
func (h *MarketDataHandler) Refresh(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	res := h.uc.Refresh(c.Request.Context(), symbol)
	if !res.Success {
		c.JSON(http.StatusBadGateway, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TestConnection probes the data gateway.
//
// GET /api/market-data/test-connection
func (h *MarketDataHandler) TestConnection(c *gin.Context) {
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, api.ConnectionResponse{
			Connected: false,
			Message:   "gateway probe not configured",
		})
		return
	}

	if err := h.prober.Probe(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, api.ConnectionResponse{
			Connected: false,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, api.ConnectionResponse{Connected: true})
}

// writeSeriesError maps domain errors to HTTP status codes.
func (h *MarketDataHandler) writeSeriesError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNoData):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: err.Error()})
	}
}

// parseRange reads the start/end query parameters. end defaults to today,
// start to one year before end.
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-1, 0, 0)

	var err error
	if s := c.Query("end"); s != "" {
		if end, err = parseDate(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = end.AddDate(-1, 0, 0)
	}
	if s := c.Query("start"); s != "" {
		if start, err = parseDate(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.ErrInvalidRange
	}
	return start, end, nil
}

// parseDate accepts both "2006-01-02" and "20060102".
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, errors.New("invalid date: " + s)
	}
	return t, nil
}

// optionKey builds an option instrument key from the request parameters.
func optionKey(c *gin.Context) (entity.InstrumentKey, error) {
	strike, err := decimal.NewFromString(c.Query("strike"))
	if err != nil || strike.IsNegative() || strike.IsZero() {
		return entity.InstrumentKey{}, errors.New("invalid strike")
	}

	right := entity.Right(strings.ToUpper(c.Query("right")))
	if !right.Valid() {
		return entity.InstrumentKey{}, errors.New("invalid right, want C or P")
	}

	expiration, err := parseDate(c.Query("expiration"))
	if err != nil {
		return entity.InstrumentKey{}, errors.New("invalid expiration")
	}

	return entity.InstrumentKey{
		Symbol:     strings.ToUpper(c.Param("symbol")),
		SecType:    "OPT",
		Strike:     strike,
		Right:      right,
		Expiration: expiration,
		Interval:   c.DefaultQuery("interval", entity.IntervalDaily),
	}, nil
}

// toBarResponses converts domain bars to the API shape. Daily timestamps are
// rendered as dates, intraday with the time component.
func toBarResponses(bars []entity.Bar, withIV bool) []api.BarResponse {
	out := make([]api.BarResponse, 0, len(bars))
	for _, b := range bars {
		ts := b.Time.UTC()
		rendered := ts.Format("2006-01-02")
		if h, m, s := ts.Clock(); h != 0 || m != 0 || s != 0 {
			rendered = ts.Format("2006-01-02 15:04:05")
		}
		r := api.BarResponse{
			Time:   rendered,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		if withIV {
			r.IV = b.IV
		}
		out = append(out, r)
	}
	return out
}
