package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

type assignPartnerRequest struct {
	PartnerID string `json:"partnerId" validate:"required,uuid"`
	Notes     string `json:"notes"`
}

// AdminAssignPartner dispatches a packed order to a delivery partner.
func AdminAssignPartner(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignPartnerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		partnerID, err := uuid.Parse(req.PartnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partnerId"))
			return
		}

		order, err := svc.AssignPartner(r.Context(), orderID, partnerID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminReassignPartner hands an out-for-delivery order to a different
// partner.
func AdminReassignPartner(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignPartnerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		partnerID, err := uuid.Parse(req.PartnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partnerId"))
			return
		}

		order, err := svc.ReassignPartner(r.Context(), orderID, partnerID, strings.TrimSpace(req.Notes), actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
