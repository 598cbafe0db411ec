package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// Refund reverses a captured payment, optionally tied to a return request. A
// return yields at most one refund.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID       uuid.UUID          `gorm:"column:payment_id;type:uuid;not null;index"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	ReturnRequestID *uuid.UUID         `gorm:"column:return_request_id;type:uuid;uniqueIndex"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	Reason          *string            `gorm:"column:reason"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
