package enums

import "fmt"

// OrderPaymentStatus maps to the order_payment_status enum in Postgres. It is
// the order-level settlement view, distinct from the per-attempt
// PaymentStatus: a COD order is "paid" once cash is collected even though no
// gateway payment exists.
type OrderPaymentStatus string

const (
	OrderPaymentPending              OrderPaymentStatus = "pending"
	OrderPaymentPaid                 OrderPaymentStatus = "paid"
	OrderPaymentFailed               OrderPaymentStatus = "failed"
	OrderPaymentRefunded             OrderPaymentStatus = "refunded"
	OrderPaymentCODPendingCollection OrderPaymentStatus = "cod_pending_collection"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentPending,
	OrderPaymentPaid,
	OrderPaymentFailed,
	OrderPaymentRefunded,
	OrderPaymentCODPendingCollection,
}

// String implements fmt.Stringer.
func (o OrderPaymentStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (o OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderPaymentStatus converts raw input into an OrderPaymentStatus.
func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	for _, candidate := range validOrderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payment status %q", value)
}
