package controllers

import (
	"net/http"
	"strings"

	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

const defaultMovementLimit = 50

type restockRequest struct {
	Quantity string  `json:"quantity" validate:"required"`
	Reason   *string `json:"reason"`
}

type adjustRequest struct {
	Type     string `json:"type" validate:"required"`
	Quantity string `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// VendorRestock records a supplier delivery against the product's stock.
func VendorRestock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity, err := parseQuantity(req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stock, err := svc.Restock(r.Context(), inventory.RestockInput{
			ProductID: productID,
			VendorID:  vendorID,
			Quantity:  quantity,
			Reason:    req.Reason,
			ActorID:   middleware.UserIDFromContext(r.Context()),
			ActorRole: middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stock)
	}
}

// VendorAdjust applies a signed correction or damage write-off.
func VendorAdjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movementType, err := enums.ParseStockMovementType(strings.TrimSpace(req.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
			return
		}
		quantity, err := parseQuantity(req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stock, err := svc.Adjust(r.Context(), inventory.AdjustInput{
			ProductID: productID,
			VendorID:  vendorID,
			Type:      movementType,
			Quantity:  quantity,
			Reason:    strings.TrimSpace(req.Reason),
			ActorID:   middleware.UserIDFromContext(r.Context()),
			ActorRole: middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stock)
	}
}

// VendorGetStock returns the product's available, reserved, and sellable
// quantities.
func VendorGetStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stock, err := svc.GetStock(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stock)
	}
}

// VendorListMovements returns the product's stock movement audit trail.
func VendorListMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultMovementLimit, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, err := svc.ListMovements(r.Context(), productID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, movements)
	}
}
