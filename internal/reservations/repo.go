package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// Repository persists reservation rows. Stock arithmetic lives in the
// inventory repository; this one only tracks the holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateBatch(ctx context.Context, rows []models.StockReservation) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.StockReservation, error)
	UpdateStatusByOrder(ctx context.Context, orderID uuid.UUID, from, to enums.ReservationStatus) (int64, error)
	ListExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
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

func (r *repository) CreateBatch(ctx context.Context, rows []models.StockReservation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	q := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatusByOrder(ctx context.Context, orderID uuid.UUID, from, to enums.ReservationStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) ListExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Distinct("order_id").
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("order_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
