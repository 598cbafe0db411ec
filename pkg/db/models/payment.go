package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// Payment is one gateway payment attempt for an order. At most one
// non-terminal attempt may exist per order at a time; creation is guarded by
// an idempotent lookup.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string              `gorm:"column:currency;not null;default:'INR'"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'created'"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id;index"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	CapturedAt       *time.Time          `gorm:"column:captured_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
