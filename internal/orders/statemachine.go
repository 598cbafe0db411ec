package orders

import (
	"fmt"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
)

// transitions is the complete lifecycle table. Legacy aliases are normalized
// by enums.ParseOrderStatus before they reach this table, so only canonical
// states appear here.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPlaced:         {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:      {enums.OrderStatusPicked, enums.OrderStatusCancelled},
	enums.OrderStatusPicked:         {enums.OrderStatusPacked, enums.OrderStatusCancelled},
	enums.OrderStatusPacked:         {enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusOutForDelivery: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	enums.OrderStatusDelivered:      {enums.OrderStatusReturned},
	enums.OrderStatusReturned:       {},
	enums.OrderStatusCancelled:      {},
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns the state-conflict error every disallowed
// transition produces, naming both states.
func checkTransition(from, to enums.OrderStatus) error {
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}
	return nil
}

// buyerCancellable are the states a buyer may cancel from on their own.
// Vendors may additionally cancel through packing, and admins anywhere
// pre-terminal.
var buyerCancellable = map[enums.OrderStatus]bool{
	enums.OrderStatusPlaced: true,
}

var vendorCancellable = map[enums.OrderStatus]bool{
	enums.OrderStatusPlaced:    true,
	enums.OrderStatusConfirmed: true,
	enums.OrderStatusPicked:    true,
	enums.OrderStatusPacked:    true,
}

func cancellableBy(status enums.OrderStatus, role enums.UserRole) bool {
	switch role {
	case enums.UserRoleBuyer:
		return buyerCancellable[status]
	case enums.UserRoleVendor:
		return vendorCancellable[status]
	case enums.UserRoleAdmin:
		return CanTransition(status, enums.OrderStatusCancelled)
	}
	return false
}
