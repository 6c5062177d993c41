// Package api defines the shared request/response types for the HTTP layer.
package api

// ErrorResponse is the common error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple acknowledgement payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// BarResponse is one OHLCV bar in an API response. IV is present only for
// option series.
type BarResponse struct {
	Time   string   `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume int64    `json:"volume"`
	IV     *float64 `json:"iv,omitempty"`
}

// ConnectionResponse reports the outcome of a provider connectivity probe.
type ConnectionResponse struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// SymbolRequest is the payload for registering a tracked symbol.
type SymbolRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name"`
	SecType string `json:"sec_type"`
}

// SymbolResponse is one tracked symbol in an API response.
type SymbolResponse struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	SecType string `json:"sec_type"`
	Active  bool   `json:"active"`
}
