package enums

import "fmt"

// DeliveryAttemptStatus maps to the delivery_attempt_status enum in Postgres.
// An attempt opens as pending when a partner heads out and closes as success
// or failed.
type DeliveryAttemptStatus string

const (
	DeliveryAttemptPending DeliveryAttemptStatus = "pending"
	DeliveryAttemptSuccess DeliveryAttemptStatus = "success"
	DeliveryAttemptFailed  DeliveryAttemptStatus = "failed"
)

var validDeliveryAttemptStatuses = []DeliveryAttemptStatus{
	DeliveryAttemptPending,
	DeliveryAttemptSuccess,
	DeliveryAttemptFailed,
}

// String implements fmt.Stringer.
func (d DeliveryAttemptStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryAttemptStatus.
func (d DeliveryAttemptStatus) IsValid() bool {
	for _, candidate := range validDeliveryAttemptStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryAttemptStatus converts raw input into a DeliveryAttemptStatus.
func ParseDeliveryAttemptStatus(value string) (DeliveryAttemptStatus, error) {
	for _, candidate := range validDeliveryAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery attempt status %q", value)
}
