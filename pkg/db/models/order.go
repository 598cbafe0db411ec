package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

// Order is the aggregate root of the lifecycle. The address and item rows are
// snapshots taken at placement time. total = subtotal + delivery fee + tax -
// discount, to the cent.
type Order struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                   `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID           uuid.UUID                `gorm:"column:buyer_id;type:uuid;not null;index"`
	VendorID          uuid.UUID                `gorm:"column:vendor_id;type:uuid;not null;index"`
	DeliveryPartnerID *uuid.UUID               `gorm:"column:delivery_partner_id;type:uuid;index"`
	Status            enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'placed';index"`
	PaymentMode       enums.PaymentMode        `gorm:"column:payment_mode;type:text;not null"`
	PaymentStatus     enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Subtotal          decimal.Decimal          `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DeliveryFee       decimal.Decimal          `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	TaxAmount         decimal.Decimal          `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	DiscountAmount    decimal.Decimal          `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount       decimal.Decimal          `gorm:"column:total_amount;type:numeric(12,2);not null"`
	DeliveryAddress   *types.Address           `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	DeliveryOTP       string                   `gorm:"column:delivery_otp;not null"`
	CancelReason      *string                  `gorm:"column:cancel_reason"`
	PlacedAt          time.Time                `gorm:"column:placed_at;not null"`
	ConfirmedAt       *time.Time               `gorm:"column:confirmed_at"`
	PickedAt          *time.Time               `gorm:"column:picked_at"`
	PackedAt          *time.Time               `gorm:"column:packed_at"`
	OutForDeliveryAt  *time.Time               `gorm:"column:out_for_delivery_at"`
	DeliveredAt       *time.Time               `gorm:"column:delivered_at"`
	CancelledAt       *time.Time               `gorm:"column:cancelled_at"`
	Items             []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Reservations      []StockReservation       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
