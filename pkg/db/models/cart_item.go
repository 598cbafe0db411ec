package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one product line in a cart. PriceAtAdd lets the aggregator
// flag price drift between add-to-cart and checkout.
type CartItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID     uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity   decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	PriceAtAdd decimal.Decimal `gorm:"column:price_at_add;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
