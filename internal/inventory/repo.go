package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureItem(ctx context.Context, productID uuid.UUID) error {
	item := models.InventoryItem{ProductID: productID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&item).Error
}

func (r *repository) Find(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// The guards cast both sides to NUMERIC: decimal values bind as text, and on
// the sqlite test driver a bare arithmetic expression compared against a text
// parameter would compare number-vs-string and never match.

func (r *repository) AdjustAvailable(ctx context.Context, productID uuid.UUID, delta decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
			AND CAST(available_qty AS NUMERIC) + CAST(? AS NUMERIC) >= 0
	`, delta, productID, delta)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Reserve(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
			AND CAST(available_qty AS NUMERIC) - CAST(reserved_qty AS NUMERIC) >= CAST(? AS NUMERIC)
	`, qty, productID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ConfirmSale(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
			AND CAST(reserved_qty AS NUMERIC) >= CAST(? AS NUMERIC)
			AND CAST(available_qty AS NUMERIC) >= CAST(? AS NUMERIC)
	`, qty, qty, productID, qty, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Release(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = CASE
				WHEN CAST(reserved_qty AS NUMERIC) >= CAST(? AS NUMERIC) THEN reserved_qty - ?
				ELSE 0
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, qty, productID).Error
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	q := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
