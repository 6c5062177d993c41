// Package domain defines errors for the symbollist feature.
package domain

import "errors"

var (
	// ErrInvalidSymbol indicates a symbol registration with a missing code
	// or an unsupported security type.
	ErrInvalidSymbol = errors.New("invalid symbol")
)
