package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

// actorFrom builds the domain actor from the authenticated request context.
func actorFrom(r *http.Request) orders.Actor {
	ctx := r.Context()
	return orders.Actor{
		ID:       middleware.UserIDFromContext(ctx),
		Role:     middleware.RoleFromContext(ctx),
		VendorID: middleware.VendorIDFromContext(ctx),
	}
}

// pathUUID parses a chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// pageParams reads limit/cursor query parameters.
func pageParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = value
	}
	return params, nil
}

// vendorScope resolves the vendor a vendor-role request acts for. Admin
// requests may select any vendor via the vendorId query parameter.
func vendorScope(r *http.Request) (uuid.UUID, error) {
	ctx := r.Context()
	if vendorID := middleware.VendorIDFromContext(ctx); vendorID != nil {
		return *vendorID, nil
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("vendorId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendorId")
		}
		return id, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor scope required")
}
