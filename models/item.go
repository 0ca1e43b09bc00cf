package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is a reusable product/service entry referenced by quotation line items.
type CatalogItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	// NameKey is NameKey(Name); the unique index makes names case-insensitively unique.
	NameKey   string          `gorm:"size:255;not null;uniqueIndex" json:"-"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"`
	Image     *string         `gorm:"size:1024" json:"image"`
}

func (CatalogItem) TableName() string { return "item_master" }
