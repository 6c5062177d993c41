// Package entity defines the domain models for the marketdata feature.
package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar intervals understood by the acquisition engine. The values match the
// bar-size strings spoken by the gateway protocol.
const (
	IntervalDaily     = "1 day"
	IntervalThirtyMin = "30 mins"
)

// Right is the option right, call or put.
type Right string

const (
	RightCall Right = "C"
	RightPut  Right = "P"
)

// Valid reports whether r is one of the two recognised option rights.
func (r Right) Valid() bool {
	return r == RightCall || r == RightPut
}

// InstrumentKey identifies a unique bar time series. Equity and index series
// leave Strike, Right and Expiration at their zero values.
type InstrumentKey struct {
	Symbol     string
	SecType    string // "STK", "IND" or "OPT"; derived from the option fields when empty
	Strike     decimal.Decimal
	Right      Right
	Expiration time.Time
	Interval   string
}

// IsOption reports whether the key identifies an option contract series.
func (k InstrumentKey) IsOption() bool {
	return !k.Expiration.IsZero() && k.Right != ""
}

// String renders the key for log and error messages.
func (k InstrumentKey) String() string {
	if !k.IsOption() {
		return fmt.Sprintf("%s/%s", k.Symbol, k.Interval)
	}
	return fmt.Sprintf("%s %s%s exp=%s/%s",
		k.Symbol, k.Strike.String(), k.Right, k.Expiration.Format("2006-01-02"), k.Interval)
}

// Bar represents one OHLCV sample for an instrument at a point in time.
// IV is the implied volatility joined from the underlying's volatility
// series; it is nil for equity and index bars and for option bars whose
// volatility sample is missing.
type Bar struct {
	Symbol   string
	Interval string
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	IV       *float64
}
