// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// Symbol is one instrument tracked by the platform. Tracked symbols drive
// the nightly refresh and the backfill tool.
type Symbol struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:20;not null;uniqueIndex"`
	Name      string    `gorm:"size:255;not null"`
	SecType   string    `gorm:"size:10;not null;default:STK"`
	IsActive  bool      `gorm:"not null;default:true"`
	SortKey   int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName maps the entity to the tracked_symbols table.
func (Symbol) TableName() string {
	return "tracked_symbols"
}
