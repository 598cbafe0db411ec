package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

// Repository persists return requests. Status changes go through
// UpdateStatus, a conditional single-statement update, so concurrent
// moderation of the same request cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindActiveByItem(ctx context.Context, orderItemID uuid.UUID) (*models.ReturnRequest, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, status enums.ReturnStatus, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error)
	UpdateStatus(ctx context.Context, requestID uuid.UUID, from, to enums.ReturnStatus, set map[string]any) (int64, error)

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) (*models.OrderItem, error)
	CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountCompletedForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
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

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindActiveByItem(ctx context.Context, orderItemID uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Where("order_item_id = ? AND status IN ?", orderItemID, []enums.ReturnStatus{
			enums.ReturnStatusRequested,
			enums.ReturnStatusApproved,
		}).
		Order("created_at DESC").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error) {
	q := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID)
	return r.page(q, cursor, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, status enums.ReturnStatus, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.page(q, cursor, limit)
}

func (r *repository) page(q *gorm.DB, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error) {
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.ReturnRequest
	err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, requestID uuid.UUID, from, to enums.ReturnStatus, set map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", requestID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", orderItemID, orderID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountCompletedForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReturnStatusCompleted).
		Count(&count).Error
	return count, err
}
