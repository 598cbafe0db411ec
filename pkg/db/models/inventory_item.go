package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryItem tracks available/reserved stock per product. Sellable
// quantity is available minus reserved; both columns are mutated only through
// conditional updates so concurrent orders never oversell.
type InventoryItem struct {
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty      decimal.Decimal `gorm:"column:available_qty;type:numeric(14,3);not null;default:0"`
	ReservedQty       decimal.Decimal `gorm:"column:reserved_qty;type:numeric(14,3);not null;default:0"`
	LowStockThreshold decimal.Decimal `gorm:"column:low_stock_threshold;type:numeric(14,3);not null;default:0"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
