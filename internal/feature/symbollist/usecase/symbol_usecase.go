// Package usecase implements the business logic for tracked-symbol operations.
package usecase

import (
	"context"
	"strings"

	"tradinghub/internal/feature/symbollist/domain"
	"tradinghub/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the persistence layer for tracked symbols.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	Save(ctx context.Context, symbol entity.Symbol) error
}

// SymbolUsecase provides business logic for tracked-symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active tracked symbols.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// ListActiveCodes returns the codes of all active tracked symbols.
func (u *SymbolUsecase) ListActiveCodes(ctx context.Context) ([]string, error) {
	return u.repo.ListActiveCodes(ctx)
}

// Register adds a symbol to the tracked list, or reactivates and updates it
// if the code is already known. Codes are normalized to upper case.
func (u *SymbolUsecase) Register(ctx context.Context, code, name, secType string) (entity.Symbol, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return entity.Symbol{}, domain.ErrInvalidSymbol
	}
	secType = strings.ToUpper(strings.TrimSpace(secType))
	if secType == "" {
		secType = "STK"
	}
	if secType != "STK" && secType != "IND" {
		return entity.Symbol{}, domain.ErrInvalidSymbol
	}

	sym := entity.Symbol{
		Code:     code,
		Name:     name,
		SecType:  secType,
		IsActive: true,
	}
	if err := u.repo.Save(ctx, sym); err != nil {
		return entity.Symbol{}, err
	}
	return sym, nil
}
