package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

type rejectOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// VendorListOrders returns the vendor's orders, optionally filtered by
// status.
func VendorListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status = enums.OrderStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
		}

		page, err := svc.ListForVendor(r.Context(), vendorID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// VendorAcceptOrder confirms a placed order and hardens its reservation.
func VendorAcceptOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderTransition(logg, func(r *http.Request, orderID uuid.UUID) (any, error) {
		return svc.Accept(r.Context(), orderID, actorFrom(r))
	})
}

// VendorRejectOrder declines a placed order and releases its stock.
func VendorRejectOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rejectOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Reject(r.Context(), orderID, actorFrom(r), strings.TrimSpace(req.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// VendorMarkPicked records that items were picked from shelf stock.
func VendorMarkPicked(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderTransition(logg, func(r *http.Request, orderID uuid.UUID) (any, error) {
		return svc.MarkPicked(r.Context(), orderID, actorFrom(r))
	})
}

// VendorMarkPacked records that the order is packed and ready for pickup.
func VendorMarkPacked(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderTransition(logg, func(r *http.Request, orderID uuid.UUID) (any, error) {
		return svc.MarkPacked(r.Context(), orderID, actorFrom(r))
	})
}

func orderTransition(logg *logger.Logger, fn func(*http.Request, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
