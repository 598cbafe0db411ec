package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
)

// Repository mutates stock exclusively through conditional single-statement
// updates so concurrent orders never oversell.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	EnsureItem(ctx context.Context, productID uuid.UUID) error
	Find(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)

	// AdjustAvailable applies a signed delta; returns false when the guard
	// (available_qty never below zero) rejects the change.
	AdjustAvailable(ctx context.Context, productID uuid.UUID, delta decimal.Decimal) (bool, error)

	// Reserve increments reserved_qty only while sellable stock covers the
	// quantity; returns false on insufficient stock.
	Reserve(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) (bool, error)

	// ConfirmSale converts a hold into a sale, decrementing both columns.
	ConfirmSale(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) (bool, error)

	// Release returns held quantity to the sellable pool, clamping at zero.
	Release(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error

	InsertMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error)
}
