package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// Repository persists payments, their append-only log, and refunds. The log's
// (event, gateway_payment_id) unique index is the webhook replay guard:
// InsertLog reports whether the row was new.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindNonTerminalByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByStatusForOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus, set map[string]any) (int64, error)

	InsertLog(ctx context.Context, log *models.PaymentLog) (bool, error)
	ListLogs(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentLog, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefundByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FindRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error)
	FindRefundByReturnRequest(ctx context.Context, returnRequestID uuid.UUID) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, refundID uuid.UUID, from, to enums.RefundStatus, set map[string]any) (int64, error)
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

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindNonTerminalByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []enums.PaymentStatus{
			enums.PaymentStatusCreated,
			enums.PaymentStatusAuthorized,
		}).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByStatusForOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus, set map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) InsertLog(ctx context.Context, log *models.PaymentLog) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(log)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListLogs(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentLog, error) {
	var rows []models.PaymentLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefundByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) FindRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).
		Where("gateway_refund_id = ?", gatewayRefundID).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) FindRefundByReturnRequest(ctx context.Context, returnRequestID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).
		Where("return_request_id = ?", returnRequestID).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) UpdateRefundStatus(ctx context.Context, refundID uuid.UUID, from, to enums.RefundStatus, set map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", refundID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}
