package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxVendorID contextKey = "vendor_id"
)

func UserIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxUserID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.UserRole); ok {
		return v
	}
	return ""
}

// VendorIDFromContext returns the vendor scope of the token, nil for
// non-vendor actors.
func VendorIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxVendorID).(uuid.UUID); ok {
		return &v
	}
	return nil
}

// WithActor injects authenticated actor details into the context. Exposed for
// handler tests.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.UserRole, vendorID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if vendorID != nil {
		ctx = context.WithValue(ctx, ctxVendorID, *vendorID)
	}
	return ctx
}
