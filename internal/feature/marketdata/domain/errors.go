// Package domain defines domain-level errors for the marketdata feature.
package domain

import "errors"

// Domain errors for market data acquisition.
// These errors represent business logic failures and should be handled appropriately by upper layers.
var (
	// ErrInvalidRange indicates a degenerate requested date range (end before
	// start). It is rejected before any provider or storage I/O happens.
	ErrInvalidRange = errors.New("requested end date is before start date")

	// ErrNoData indicates that the provider completed a fetch cleanly but
	// returned zero bars for a series the engine expected to be non-empty.
	// This usually means the instrument descriptor is wrong, so the fetch is
	// not retried automatically.
	ErrNoData = errors.New("no data available for instrument")
)
