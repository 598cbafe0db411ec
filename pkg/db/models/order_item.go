package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is an immutable snapshot of a product line at placement time,
// including the return-policy fields the return workflow checks later.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Name             string          `gorm:"column:name;not null"`
	SKU              string          `gorm:"column:sku;not null"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	UnitValue        decimal.Decimal `gorm:"column:unit_value;type:numeric(12,3);not null;default:1"`
	TotalPrice       decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	ReturnEligible   bool            `gorm:"column:return_eligible;not null;default:false"`
	ReturnWindowDays int             `gorm:"column:return_window_days;not null;default:0"`
	ReturnDeadline   *time.Time      `gorm:"column:return_deadline"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
