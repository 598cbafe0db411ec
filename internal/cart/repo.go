package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// Repository persists cart rows and the lookups the aggregator needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindActiveByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error)
	Create(ctx context.Context, cart *models.CartRecord) error
	UpdateStatus(ctx context.Context, cartID uuid.UUID, status enums.CartStatus) error

	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	UpsertItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error)
	DeleteItems(ctx context.Context, cartID uuid.UUID) error

	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindInventory(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	FindDeliveryZone(ctx context.Context, vendorID uuid.UUID, pincode string) (*models.DeliveryZone, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error) {
	var cart models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_id = ? AND status = ?", buyerID, enums.CartStatusActive).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.CartRecord) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *repository) UpdateStatus(ctx context.Context, cartID uuid.UUID, status enums.CartStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ?", cartID).
		Update("status", status).Error
}

func (r *repository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, itemID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindInventory(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindDeliveryZone(ctx context.Context, vendorID uuid.UUID, pincode string) (*models.DeliveryZone, error) {
	var zone models.DeliveryZone
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND pincode = ?", vendorID, pincode).
		First(&zone).Error
	if err != nil {
		return nil, err
	}
	return &zone, nil
}
