// Package handler provides the HTTP handlers for the symbollist feature.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradinghub/internal/api"
	"tradinghub/internal/feature/symbollist/domain"
	"tradinghub/internal/feature/symbollist/domain/entity"
)

// SymbolUsecase defines the tracked-symbol operations the handler needs.
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type SymbolUsecase interface {
	ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error)
	Register(ctx context.Context, code, name, secType string) (entity.Symbol, error)
}

// SymbolHandler handles HTTP requests for tracked symbols.
type SymbolHandler struct {
	uc SymbolUsecase
}

// NewSymbolHandler creates a new SymbolHandler.
func NewSymbolHandler(uc SymbolUsecase) *SymbolHandler {
	return &SymbolHandler{uc: uc}
}

// List returns all active tracked symbols.
//
// GET /symbols
func (h *SymbolHandler) List(c *gin.Context) {
	symbols, err := h.uc.ListActiveSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]api.SymbolResponse, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, api.SymbolResponse{
			Code:    s.Code,
			Name:    s.Name,
			SecType: s.SecType,
			Active:  s.IsActive,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Register adds a symbol to the tracked list.
//
// POST /symbols
func (h *SymbolHandler) Register(c *gin.Context) {
	var req api.SymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	sym, err := h.uc.Register(c.Request.Context(), req.Code, req.Name, req.SecType)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSymbol) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, api.SymbolResponse{
		Code:    sym.Code,
		Name:    sym.Name,
		SecType: sym.SecType,
		Active:  sym.IsActive,
	})
}
