package enums

import "fmt"

// ReservationStatus maps to the reservation_status enum in Postgres. Expired
// holds are swept into released; the enum stays closed at three values.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusConfirmed,
	ReservationStatusReleased,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsTerminal reports whether the hold can change state again.
func (r ReservationStatus) IsTerminal() bool {
	return r == ReservationStatusConfirmed || r == ReservationStatusReleased
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
