package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutItem is one contributing order within a vendor payout.
type PayoutItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PayoutID         uuid.UUID       `gorm:"column:payout_id;type:uuid;not null;index"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(14,2);not null"`
	RefundDeductions decimal.Decimal `gorm:"column:refund_deductions;type:numeric(14,2);not null;default:0"`
	NetAmount        decimal.Decimal `gorm:"column:net_amount;type:numeric(14,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
