package controllers

import (
	"net/http"
	"strings"

	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/metrics"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

type placeOrderRequest struct {
	Address     types.Address `json:"address" validate:"required"`
	PaymentMode string        `json:"paymentMode" validate:"required,oneof=cod online"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// PlaceOrder converts the buyer's active cart into a placed order.
func PlaceOrder(svc orders.Service, m *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), orders.CreateInput{
			BuyerID:     middleware.UserIDFromContext(r.Context()),
			Address:     req.Address,
			PaymentMode: enums.PaymentMode(req.PaymentMode),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m.IncPlaced(req.PaymentMode)
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ListOrders returns the buyer's order history, newest first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForBuyer(r.Context(), middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// OrderDetail returns one order the actor is allowed to see.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderStatusLogs returns the order's transition audit trail.
func OrderStatusLogs(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logs, err := svc.StatusLogs(r.Context(), orderID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, logs)
	}
}

// CancelOrder cancels an order on behalf of the buyer, vendor, or admin.
func CancelOrder(svc orders.Service, m *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required"))
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, actorFrom(r), reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m.IncCancelled(reason)
		responses.WriteSuccess(w, order)
	}
}
