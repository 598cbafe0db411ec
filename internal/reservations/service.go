package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
)

// ExpiryReason is recorded when the sweep releases holds whose payment never
// arrived.
const ExpiryReason = "payment timeout"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type lowStockEmitter interface {
	EmitLowStockTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
}

// OrderCancelFunc cancels an order whose holds just expired, inside the
// sweep's transaction. Bound after construction because the order service
// depends on this one.
type OrderCancelFunc func(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error

// ReserveLine is one product hold requested at order placement. Quantity is
// the ordered count; UnitValue converts it to stock units.
type ReserveLine struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal
}

// Service manages time-boxed stock holds tied to orders. The Tx methods run
// inside the caller's order transaction so holds and order rows commit
// together.
type Service interface {
	ReserveForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReserveLine, expiresAt time.Time) error
	ConfirmTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)

	// BindOrderCancels wires the order-cancel hook once the order service
	// exists.
	BindOrderCancels(fn OrderCancelFunc)
}

type service struct {
	repo        Repository
	stock       inventory.Repository
	lowStock    lowStockEmitter
	tx          txRunner
	outbox      outboxPublisher
	orderCancel OrderCancelFunc
	now         func() time.Time
}

// NewService builds the reservation manager.
func NewService(repo Repository, stock inventory.Repository, lowStock lowStockEmitter, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock mutator required")
	}
	if lowStock == nil {
		return nil, fmt.Errorf("low stock emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, stock: stock, lowStock: lowStock, tx: tx, outbox: outboxSvc, now: time.Now}, nil
}

func (s *service) BindOrderCancels(fn OrderCancelFunc) {
	s.orderCancel = fn
}

func (s *service) ReserveForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReserveLine, expiresAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reservation")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}

	stock := s.stock.WithTx(tx)
	rows := make([]models.StockReservation, 0, len(lines))

	for _, line := range lines {
		needed := neededUnits(line)
		if !needed.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("invalid quantity for product %s", line.ProductID))
		}

		if err := stock.EnsureItem(ctx, line.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure inventory row")
		}
		ok, err := stock.Reserve(ctx, line.ProductID, needed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s", line.ProductName)).
				WithDetails(map[string]any{
					"product_id":   line.ProductID,
					"product_name": line.ProductName,
					"requested":    needed,
				})
		}

		rows = append(rows, models.StockReservation{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  needed,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: expiresAt,
		})
	}

	if err := s.repo.WithTx(tx).CreateBatch(ctx, rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist reservations")
	}
	return nil
}

func (s *service) ConfirmTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for confirmation")
	}
	repo := s.repo.WithTx(tx)
	stock := s.stock.WithTx(tx)

	holds, err := repo.ListByOrder(ctx, orderID, enums.ReservationStatusActive)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}
	if len(holds) == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no active reservations for order")
	}

	ref := orderID
	for _, hold := range holds {
		ok, err := stock.ConfirmSale(ctx, hold.ProductID, hold.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm stock sale")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("reservation %s no longer backed by stock", hold.ID))
		}

		movement := &models.StockMovement{
			ID:          uuid.New(),
			ProductID:   hold.ProductID,
			Type:        enums.StockMovementSale,
			Quantity:    hold.Quantity.Neg(),
			ReferenceID: &ref,
		}
		if err := stock.InsertMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale movement")
		}
		if err := s.lowStock.EmitLowStockTx(ctx, tx, hold.ProductID); err != nil {
			return err
		}
	}

	if _, err := repo.UpdateStatusByOrder(ctx, orderID, enums.ReservationStatusActive, enums.ReservationStatusConfirmed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservations confirmed")
	}
	return nil
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for release")
	}
	repo := s.repo.WithTx(tx)
	stock := s.stock.WithTx(tx)

	holds, err := repo.ListByOrder(ctx, orderID, enums.ReservationStatusActive)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}
	if len(holds) == 0 {
		return nil
	}

	for _, hold := range holds {
		if err := stock.Release(ctx, hold.ProductID, hold.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}
	}

	if _, err := repo.UpdateStatusByOrder(ctx, orderID, enums.ReservationStatusActive, enums.ReservationStatusReleased); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservations released")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   orderID,
		Version:       1,
		Data: payloads.ReservationReleasedEvent{
			OrderID:    orderID,
			Reason:     reason,
			ReleasedAt: s.now().UTC(),
		},
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

// ExpireStale releases every active hold past its deadline and cancels the
// order behind it when that order is still waiting on payment. Runs are
// idempotent: each order's holds flip to released exactly once.
func (s *service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	orderIDs, err := s.repo.ListExpiredOrderIDs(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
	}

	expired := 0
	for _, orderID := range orderIDs {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.ReleaseTx(ctx, tx, orderID, ExpiryReason); err != nil {
				return err
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   orderID,
				Version:       1,
				Data: payloads.ReservationReleasedEvent{
					OrderID:    orderID,
					Reason:     ExpiryReason,
					ReleasedAt: now.UTC(),
				},
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
			if s.orderCancel == nil {
				return nil
			}
			return s.orderCancel(ctx, tx, orderID, ExpiryReason)
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func neededUnits(line ReserveLine) decimal.Decimal {
	unit := line.UnitValue
	if unit.IsZero() {
		unit = decimal.NewFromInt(1)
	}
	return unit.Mul(line.Quantity)
}
