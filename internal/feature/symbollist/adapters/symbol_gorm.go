// Package adapters provides the repository implementations for the symbollist feature.
package adapters

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradinghub/internal/feature/symbollist/domain/entity"
	"tradinghub/internal/feature/symbollist/usecase"
)

// symbolGorm is the GORM implementation of the SymbolRepository interface.
type symbolGorm struct {
	db      *gorm.DB
	migrate sync.Once
}

var _ usecase.SymbolRepository = (*symbolGorm)(nil)

// NewSymbolRepository creates a symbolGorm repository with the given DB handle.
func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

func (r *symbolGorm) ensureTable() error {
	var err error
	r.migrate.Do(func() {
		err = r.db.AutoMigrate(&entity.Symbol{})
	})
	return err
}

// ListActive returns all active symbols ordered by sort_key.
func (r *symbolGorm) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	if err := r.ensureTable(); err != nil {
		return nil, err
	}
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListActiveCodes returns only the codes of active symbols ordered by sort_key.
func (r *symbolGorm) ListActiveCodes(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(); err != nil {
		return nil, err
	}
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&entity.Symbol{}).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// Save inserts a symbol, or updates name, sec_type and is_active when the
// code already exists.
func (r *symbolGorm) Save(ctx context.Context, symbol entity.Symbol) error {
	if err := r.ensureTable(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "sec_type", "is_active", "updated_at"}),
		}).
		Create(&symbol).Error
}
