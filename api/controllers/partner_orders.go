package controllers

import (
	"net/http"
	"strings"

	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

type deliverRequest struct {
	OTP          string `json:"otp" validate:"required,len=6"`
	CODCollected bool   `json:"codCollected"`
}

// PartnerListOrders returns orders assigned to the delivery partner.
func PartnerListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForPartner(r.Context(), middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// PartnerMarkDelivered closes a delivery against the buyer's OTP. COD orders
// additionally require the partner to confirm cash collection.
func PartnerMarkDelivered(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req deliverRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		otp := strings.TrimSpace(req.OTP)
		if otp == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "delivery otp required"))
			return
		}

		order, err := svc.MarkDelivered(r.Context(), orders.DeliverInput{
			OrderID:      orderID,
			PartnerID:    middleware.UserIDFromContext(r.Context()),
			OTP:          otp,
			CODCollected: req.CODCollected,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
