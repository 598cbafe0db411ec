package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// ReturnRequest is a post-delivery return on one order item. Only one
// request may be in requested/approved state per item; the services enforce
// this with a conditional lookup before insert.
type ReturnRequest struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID  uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;index"`
	BuyerID      uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index"`
	VendorID     uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	Reason       string             `gorm:"column:reason;not null"`
	Status       enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'requested'"`
	RefundAmount decimal.Decimal    `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	RejectReason *string            `gorm:"column:reject_reason"`
	ApprovedAt   *time.Time         `gorm:"column:approved_at"`
	RejectedAt   *time.Time         `gorm:"column:rejected_at"`
	CompletedAt  *time.Time         `gorm:"column:completed_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
