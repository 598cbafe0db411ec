package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the sellable catalog entry. Orders snapshot the fields they need
// at placement time, so edits here never rewrite historical orders.
type Product struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_products_vendor_sku,priority:1"`
	Name             string          `gorm:"column:name;not null"`
	SKU              string          `gorm:"column:sku;not null;uniqueIndex:idx_products_vendor_sku,priority:2"`
	Description      *string         `gorm:"column:description"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	StockUnit        string          `gorm:"column:stock_unit;not null;default:'piece'"`
	UnitValue        decimal.Decimal `gorm:"column:unit_value;type:numeric(12,3);not null;default:1"`
	ReturnEligible   bool            `gorm:"column:return_eligible;not null;default:false"`
	ReturnWindowDays int             `gorm:"column:return_window_days;not null;default:0"`
	Active           bool            `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
