package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateReservation   OutboxAggregateType = "reservation"
	AggregateReturnRequest OutboxAggregateType = "return_request"
	AggregateVendorPayout  OutboxAggregateType = "vendor_payout"
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
	AggregateNotification  OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateReservation,
	AggregateReturnRequest,
	AggregateVendorPayout,
	AggregateInventoryItem,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPlaced            OutboxEventType = "order_placed"
	EventOrderConfirmed         OutboxEventType = "order_confirmed"
	EventOrderStateChanged      OutboxEventType = "order_state_changed"
	EventOrderOutForDelivery    OutboxEventType = "order_out_for_delivery"
	EventOrderDelivered         OutboxEventType = "order_delivered"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventPaymentCaptured        OutboxEventType = "payment_captured"
	EventPaymentFailed          OutboxEventType = "payment_failed"
	EventCashCollected          OutboxEventType = "cash_collected"
	EventRefundInitiated        OutboxEventType = "refund_initiated"
	EventRefundProcessed        OutboxEventType = "refund_processed"
	EventReservationExpired     OutboxEventType = "reservation_expired"
	EventReservationReleased    OutboxEventType = "reservation_released"
	EventReturnRequested        OutboxEventType = "return_requested"
	EventReturnApproved         OutboxEventType = "return_approved"
	EventReturnRejected         OutboxEventType = "return_rejected"
	EventReturnCompleted        OutboxEventType = "return_completed"
	EventPayoutBatchGenerated   OutboxEventType = "payout_batch_generated"
	EventPayoutProcessed        OutboxEventType = "payout_processed"
	EventStockLow               OutboxEventType = "stock_low"
	EventNotificationRequested  OutboxEventType = "notification_requested"
	EventDeliveryAttemptLogged  OutboxEventType = "delivery_attempt_logged"
	EventDeliveryPartnerChanged OutboxEventType = "delivery_partner_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderConfirmed,
	EventOrderStateChanged,
	EventOrderOutForDelivery,
	EventOrderDelivered,
	EventOrderCancelled,
	EventPaymentCaptured,
	EventPaymentFailed,
	EventCashCollected,
	EventRefundInitiated,
	EventRefundProcessed,
	EventReservationExpired,
	EventReservationReleased,
	EventReturnRequested,
	EventReturnApproved,
	EventReturnRejected,
	EventReturnCompleted,
	EventPayoutBatchGenerated,
	EventPayoutProcessed,
	EventStockLow,
	EventNotificationRequested,
	EventDeliveryAttemptLogged,
	EventDeliveryPartnerChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
