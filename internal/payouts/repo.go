package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

// Repository persists vendor payouts and reads the delivered-order and
// refund rows earnings are computed from. The (vendor, period) unique index
// on vendor_payouts is the idempotency guard for batch generation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, payout *models.VendorPayout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	FindByPeriod(ctx context.Context, vendorID uuid.UUID, periodStart, periodEnd time.Time) (*models.VendorPayout, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.VendorPayout, error)
	UpdateStatus(ctx context.Context, payoutID uuid.UUID, from, to enums.PayoutStatus, set map[string]any) (int64, error)

	ListDeliveredOrders(ctx context.Context, vendorID uuid.UUID, periodStart, periodEnd time.Time) ([]models.Order, error)
	ListVendorsWithDeliveries(ctx context.Context, periodStart, periodEnd time.Time) ([]uuid.UUID, error)
	SumProcessedRefunds(ctx context.Context, orderID uuid.UUID, periodStart, periodEnd time.Time) (decimal.Decimal, error)
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

func (r *repository) Create(ctx context.Context, payout *models.VendorPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByPeriod(ctx context.Context, vendorID uuid.UUID, periodStart, periodEnd time.Time) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("vendor_id = ? AND period_start = ? AND period_end = ?", vendorID, periodStart, periodEnd).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.VendorPayout, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.VendorPayout
	err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, payoutID uuid.UUID, from, to enums.PayoutStatus, set map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Where("id = ? AND status = ?", payoutID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) ListDeliveredOrders(ctx context.Context, vendorID uuid.UUID, periodStart, periodEnd time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND delivered_at >= ? AND delivered_at < ?", vendorID, periodStart, periodEnd).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusReturned}).
		Order("delivered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListVendorsWithDeliveries(ctx context.Context, periodStart, periodEnd time.Time) ([]uuid.UUID, error) {
	var vendorIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Distinct("vendor_id").
		Where("delivered_at >= ? AND delivered_at < ?", periodStart, periodEnd).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusReturned}).
		Pluck("vendor_id", &vendorIDs).Error
	if err != nil {
		return nil, err
	}
	return vendorIDs, nil
}

func (r *repository) SumProcessedRefunds(ctx context.Context, orderID uuid.UUID, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Select("SUM(amount)").
		Where("order_id = ? AND status = ?", orderID, enums.RefundStatusProcessed).
		Where("processed_at >= ? AND processed_at < ?", periodStart, periodEnd).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
