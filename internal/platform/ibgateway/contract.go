package ibgateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Security types accepted by the gateway.
const (
	SecTypeStock  = "STK"
	SecTypeIndex  = "IND"
	SecTypeOption = "OPT"
)

// Data types ("what to show") for historical requests.
const (
	DataTrades     = "TRADES"
	DataImpliedVol = "OPTION_IMPLIED_VOLATILITY"
)

// Contract describes the instrument a historical request targets.
type Contract struct {
	Symbol   string
	SecType  string
	Exchange string
	Currency string

	// Option fields; zero-valued for stock and index contracts.
	Expiration     time.Time
	Strike         decimal.Decimal
	Right          string // "C" or "P"
	Multiplier     string
	IncludeExpired bool
}

// Stock returns a contract for a US equity routed through SMART.
func Stock(symbol string) Contract {
	return Contract{Symbol: symbol, SecType: SecTypeStock, Exchange: "SMART", Currency: "USD"}
}

// Index returns a contract for an index on the given exchange (e.g. VIX on
// CBOE).
func Index(symbol, exchange string) Contract {
	return Contract{Symbol: symbol, SecType: SecTypeIndex, Exchange: exchange, Currency: "USD"}
}

// Option returns a contract for a US option. Expired contracts are included
// so historical fetches keep working after expiry.
func Option(symbol string, strike decimal.Decimal, right string, expiration time.Time) Contract {
	return Contract{
		Symbol:         symbol,
		SecType:        SecTypeOption,
		Exchange:       "SMART",
		Currency:       "USD",
		Expiration:     expiration,
		Strike:         strike,
		Right:          right,
		Multiplier:     "100",
		IncludeExpired: true,
	}
}

// expirationField renders the expiration date for the wire, empty for
// non-option contracts.
func (c Contract) expirationField() string {
	if c.Expiration.IsZero() {
		return ""
	}
	return c.Expiration.Format("20060102")
}
