package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

// Repository persists orders, their transition log, and delivery attempts.
// Status changes go through UpdateStatus, a conditional single-statement
// update, so concurrent lifecycle operations on the same order cannot both
// win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, status enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListByPartner(ctx context.Context, partnerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListStalePlaced(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	// UpdateStatus flips status from -> to and applies extra column writes in
	// the same statement. Zero rows affected means another writer got there
	// first.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, set map[string]any) (int64, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderPaymentStatus) (int64, error)
	UpdateItemReturnDeadlines(ctx context.Context, orderID uuid.UUID, deadline time.Time) error

	InsertStatusLog(ctx context.Context, log *models.OrderStatusLog) error
	ListStatusLogs(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusLog, error)

	FindPartner(ctx context.Context, partnerID uuid.UUID) (*models.DeliveryPartner, error)
	InsertAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	CountAttempts(ctx context.Context, orderID uuid.UUID) (int64, error)
	CloseAttempt(ctx context.Context, orderID, partnerID uuid.UUID, status enums.DeliveryAttemptStatus, notes *string, completedAt time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID)
	return r.page(q, cursor, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, status enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.page(q, cursor, limit)
}

func (r *repository) ListByPartner(ctx context.Context, partnerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Where("delivery_partner_id = ?", partnerID)
	return r.page(q, cursor, limit)
}

func (r *repository) page(q *gorm.DB, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Order
	err := q.Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListStalePlaced(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND placed_at <= ?", enums.OrderStatusPlaced, cutoff).
		Order("placed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, set map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderPaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Update("payment_status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateItemReturnDeadlines(ctx context.Context, orderID uuid.UUID, deliveredAt time.Time) error {
	rows := []models.OrderItem{}
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND return_eligible = ?", orderID, true).
		Find(&rows).Error
	if err != nil {
		return err
	}
	for _, item := range rows {
		deadline := deliveredAt.AddDate(0, 0, item.ReturnWindowDays)
		err := r.db.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ?", item.ID).
			Update("return_deadline", deadline).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) InsertStatusLog(ctx context.Context, log *models.OrderStatusLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListStatusLogs(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusLog, error) {
	var rows []models.OrderStatusLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindPartner(ctx context.Context, partnerID uuid.UUID) (*models.DeliveryPartner, error) {
	var partner models.DeliveryPartner
	if err := r.db.WithContext(ctx).Where("id = ?", partnerID).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) InsertAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) CountAttempts(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryAttempt{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) CloseAttempt(ctx context.Context, orderID, partnerID uuid.UUID, status enums.DeliveryAttemptStatus, notes *string, completedAt time.Time) (int64, error) {
	values := map[string]any{
		"status":       status,
		"completed_at": completedAt,
	}
	if notes != nil {
		values["notes"] = *notes
	}
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryAttempt{}).
		Where("order_id = ? AND partner_id = ? AND status = ?", orderID, partnerID, enums.DeliveryAttemptPending).
		Updates(values)
	return res.RowsAffected, res.Error
}
