package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// VendorPayout aggregates one vendor's net earnings for a fixed period.
// net = gross - commission - refund deductions. Unique per (vendor, period).
type VendorPayout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID         uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_vendor_payout_period,priority:1"`
	PeriodStart      time.Time          `gorm:"column:period_start;not null;uniqueIndex:idx_vendor_payout_period,priority:2"`
	PeriodEnd        time.Time          `gorm:"column:period_end;not null;uniqueIndex:idx_vendor_payout_period,priority:3"`
	GrossAmount      decimal.Decimal    `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	CommissionAmount decimal.Decimal    `gorm:"column:commission_amount;type:numeric(14,2);not null"`
	RefundDeductions decimal.Decimal    `gorm:"column:refund_deductions;type:numeric(14,2);not null;default:0"`
	NetAmount        decimal.Decimal    `gorm:"column:net_amount;type:numeric(14,2);not null"`
	Status           enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TransactionID    *string            `gorm:"column:transaction_id"`
	FailureReason    *string            `gorm:"column:failure_reason"`
	ProcessedAt      *time.Time         `gorm:"column:processed_at"`
	Items            []PayoutItem       `gorm:"foreignKey:PayoutID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
