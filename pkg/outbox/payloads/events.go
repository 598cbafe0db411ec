package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// OrderPlacedEvent signals a freshly placed order holding stock.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	BuyerID     uuid.UUID         `json:"buyerId"`
	VendorID    uuid.UUID         `json:"vendorId"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	PaymentMode enums.PaymentMode `json:"paymentMode"`
	PlacedAt    time.Time         `json:"placedAt"`
}

// OrderStateChangedEvent is emitted on every lifecycle transition.
type OrderStateChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	BuyerID     uuid.UUID         `json:"buyerId"`
	VendorID    uuid.UUID         `json:"vendorId"`
	FromStatus  enums.OrderStatus `json:"fromStatus"`
	ToStatus    enums.OrderStatus `json:"toStatus"`
	Reason      string            `json:"reason,omitempty"`
	ChangedAt   time.Time         `json:"changedAt"`
}

// OrderCancelledEvent carries the cancellation reason for notifications.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	BuyerID     uuid.UUID `json:"buyerId"`
	VendorID    uuid.UUID `json:"vendorId"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// OrderDeliveredEvent closes out a delivery, including COD settlement.
type OrderDeliveredEvent struct {
	OrderID      uuid.UUID  `json:"orderId"`
	OrderNumber  string     `json:"orderNumber"`
	BuyerID      uuid.UUID  `json:"buyerId"`
	VendorID     uuid.UUID  `json:"vendorId"`
	PartnerID    *uuid.UUID `json:"partnerId,omitempty"`
	CODCollected bool       `json:"codCollected"`
	DeliveredAt  time.Time  `json:"deliveredAt"`
}

// PaymentStatusEvent reports a gateway payment state change.
type PaymentStatusEvent struct {
	PaymentID        uuid.UUID           `json:"paymentId"`
	OrderID          uuid.UUID           `json:"orderId"`
	BuyerID          uuid.UUID           `json:"buyerId"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           decimal.Decimal     `json:"amount"`
	GatewayPaymentID string              `json:"gatewayPaymentId,omitempty"`
	FailureReason    string              `json:"failureReason,omitempty"`
}

// RefundStatusEvent reports refund progress back to the buyer.
type RefundStatusEvent struct {
	RefundID        uuid.UUID          `json:"refundId"`
	PaymentID       uuid.UUID          `json:"paymentId"`
	OrderID         uuid.UUID          `json:"orderId"`
	ReturnRequestID *uuid.UUID         `json:"returnRequestId,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Status          enums.RefundStatus `json:"status"`
}

// ReservationReleasedEvent reports holds returned to the sellable pool.
type ReservationReleasedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	Reason     string    `json:"reason,omitempty"`
	ReleasedAt time.Time `json:"releasedAt"`
}

// ReturnStatusEvent tracks a return request through its workflow.
type ReturnStatusEvent struct {
	ReturnRequestID uuid.UUID          `json:"returnRequestId"`
	OrderID         uuid.UUID          `json:"orderId"`
	OrderItemID     uuid.UUID          `json:"orderItemId"`
	BuyerID         uuid.UUID          `json:"buyerId"`
	VendorID        uuid.UUID          `json:"vendorId"`
	Status          enums.ReturnStatus `json:"status"`
	RefundAmount    decimal.Decimal    `json:"refundAmount"`
	Reason          string             `json:"reason,omitempty"`
}

// PayoutStatusEvent notifies a vendor about a payout batch.
type PayoutStatusEvent struct {
	PayoutID    uuid.UUID          `json:"payoutId"`
	VendorID    uuid.UUID          `json:"vendorId"`
	PeriodStart time.Time          `json:"periodStart"`
	PeriodEnd   time.Time          `json:"periodEnd"`
	NetAmount   decimal.Decimal    `json:"netAmount"`
	Status      enums.PayoutStatus `json:"status"`
}

// StockLowEvent warns a vendor that sellable quantity crossed the threshold.
type StockLowEvent struct {
	ProductID    uuid.UUID       `json:"productId"`
	VendorID     uuid.UUID       `json:"vendorId"`
	AvailableQty decimal.Decimal `json:"availableQty"`
	Threshold    decimal.Decimal `json:"threshold"`
}

// NotificationRequestedEvent asks the notification worker to write an in-app
// message.
type NotificationRequestedEvent struct {
	UserID    uuid.UUID              `json:"userId"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	ActionURL string                 `json:"actionUrl,omitempty"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}
