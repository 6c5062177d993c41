// Package adapters implements the marketdata repositories over gorm.
package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradinghub/internal/feature/marketdata/domain/entity"
	"tradinghub/internal/feature/marketdata/usecase"
)

type barGorm struct {
	db *gorm.DB

	// Tables are confirmed lazily, once per series type, on first use.
	priceOnce  sync.Once
	priceErr   error
	optionOnce sync.Once
	optionErr  error
}

var _ usecase.BarRepository = (*barGorm)(nil)

// NewBarRepository creates the gorm-backed bar store.
func NewBarRepository(db *gorm.DB) *barGorm {
	return &barGorm{db: db}
}

// PriceBarModel is one equity or index bar row.
type PriceBarModel struct {
	ID          uint      `gorm:"primaryKey"`
	Symbol      string    `gorm:"size:16;not null;uniqueIndex:md_sym_date_int,priority:1"`
	BarInterval string    `gorm:"size:16;not null;uniqueIndex:md_sym_date_int,priority:2"`
	Date        time.Time `gorm:"not null;uniqueIndex:md_sym_date_int,priority:3"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume int64   `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PriceBarModel) TableName() string {
	return "market_data"
}

// OptionBarModel is one option contract bar row, with the nullable implied
// volatility joined from the underlying's series.
type OptionBarModel struct {
	ID          uint            `gorm:"primaryKey"`
	Symbol      string          `gorm:"size:16;not null;uniqueIndex:opt_contract_date,priority:1"`
	Strike      decimal.Decimal `gorm:"type:decimal(10,4);not null;uniqueIndex:opt_contract_date,priority:2"`
	Right       string          `gorm:"size:1;not null;uniqueIndex:opt_contract_date,priority:3"`
	Expiration  time.Time       `gorm:"not null;uniqueIndex:opt_contract_date,priority:4"`
	BarInterval string          `gorm:"size:16;not null;uniqueIndex:opt_contract_date,priority:5"`
	Date        time.Time       `gorm:"not null;uniqueIndex:opt_contract_date,priority:6"`

	Open   float64  `gorm:"not null"`
	High   float64  `gorm:"not null"`
	Low    float64  `gorm:"not null"`
	Close  float64  `gorm:"not null"`
	Volume int64    `gorm:"not null;default:0"`
	IV     *float64 `gorm:"column:iv"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OptionBarModel) TableName() string {
	return "options_data"
}

// UpsertBatch writes the bars for the keyed series, overwriting OHLCV (and
// IV for options) on conflict so refetches and overlapping chunk boundaries
// update in place. The batch runs in a single transaction; a failure leaves
// none of its rows behind.
func (r *barGorm) UpsertBatch(ctx context.Context, key entity.InstrumentKey, bars []entity.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	if key.IsOption() {
		return r.upsertOptionBars(ctx, key, bars)
	}
	return r.upsertPriceBars(ctx, key, bars)
}

func (r *barGorm) upsertPriceBars(ctx context.Context, key entity.InstrumentKey, bars []entity.Bar) (int, error) {
	if err := r.ensurePriceTable(); err != nil {
		return 0, err
	}

	ms := make([]PriceBarModel, 0, len(bars))
	for _, b := range bars {
		ms = append(ms, PriceBarModel{
			Symbol:      key.Symbol,
			BarInterval: key.Interval,
			Date:        b.Time,
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "bar_interval"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).Create(&ms).Error
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

func (r *barGorm) upsertOptionBars(ctx context.Context, key entity.InstrumentKey, bars []entity.Bar) (int, error) {
	if err := r.ensureOptionTable(); err != nil {
		return 0, err
	}

	ms := make([]OptionBarModel, 0, len(bars))
	for _, b := range bars {
		ms = append(ms, OptionBarModel{
			Symbol:      key.Symbol,
			Strike:      key.Strike,
			Right:       string(key.Right),
			Expiration:  key.Expiration,
			BarInterval: key.Interval,
			Date:        b.Time,
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			IV:          b.IV,
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "strike"}, {Name: "right"},
			{Name: "expiration"}, {Name: "bar_interval"}, {Name: "date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "iv", "updated_at"}),
	}).Create(&ms).Error
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

// ReadRange returns the series' bars within [start, end] inclusive, ordered
// by date ascending.
func (r *barGorm) ReadRange(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error) {
	if key.IsOption() {
		return r.readOptionBars(ctx, key, start, end)
	}
	return r.readPriceBars(ctx, key, start, end)
}

func (r *barGorm) readPriceBars(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error) {
	if err := r.ensurePriceTable(); err != nil {
		return nil, err
	}

	var rows []PriceBarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND date >= ? AND date <= ?",
			key.Symbol, key.Interval, start, end).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]entity.Bar, 0, len(rows))
	for _, m := range rows {
		out = append(out, entity.Bar{
			Symbol:   m.Symbol,
			Interval: m.BarInterval,
			Time:     m.Date,
			Open:     m.Open,
			High:     m.High,
			Low:      m.Low,
			Close:    m.Close,
			Volume:   m.Volume,
		})
	}
	return out, nil
}

func (r *barGorm) readOptionBars(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error) {
	if err := r.ensureOptionTable(); err != nil {
		return nil, err
	}

	var rows []OptionBarModel
	err := r.db.WithContext(ctx).
		Where(`symbol = ? AND strike = ? AND "right" = ? AND expiration = ? AND bar_interval = ? AND date >= ? AND date <= ?`,
			key.Symbol, key.Strike, string(key.Right), key.Expiration, key.Interval, start, end).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]entity.Bar, 0, len(rows))
	for _, m := range rows {
		out = append(out, entity.Bar{
			Symbol:   m.Symbol,
			Interval: m.BarInterval,
			Time:     m.Date,
			Open:     m.Open,
			High:     m.High,
			Low:      m.Low,
			Close:    m.Close,
			Volume:   m.Volume,
			IV:       m.IV,
		})
	}
	return out, nil
}

func (r *barGorm) ensurePriceTable() error {
	r.priceOnce.Do(func() {
		if err := r.db.AutoMigrate(&PriceBarModel{}); err != nil {
			r.priceErr = fmt.Errorf("migrate market_data: %w", err)
		}
	})
	return r.priceErr
}

func (r *barGorm) ensureOptionTable() error {
	r.optionOnce.Do(func() {
		if err := r.db.AutoMigrate(&OptionBarModel{}); err != nil {
			r.optionErr = fmt.Errorf("migrate options_data: %w", err)
		}
	})
	return r.optionErr
}
