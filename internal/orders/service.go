package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/reservations"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
	"github.com/kartmitra/kartmitra-backend/pkg/security"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

// AutoCancelReason is stamped on orders the sweep cancels because the vendor
// never accepted them.
const AutoCancelReason = "not accepted in time"

// PaymentFailedReason is stamped on orders cancelled after a failed online
// payment.
const PaymentFailedReason = "payment failed"

const orderNumberAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartSource interface {
	BuildSummary(ctx context.Context, buyerID uuid.UUID, pincode string) (*cart.Summary, error)
	MarkConvertedTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type reservationManager interface {
	ReserveForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []reservations.ReserveLine, expiresAt time.Time) error
	ConfirmTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

// RefundFunc initiates a gateway refund for an order whose online payment was
// already captured. Bound after construction because the payment service
// depends on this one.
type RefundFunc func(ctx context.Context, orderID uuid.UUID, reason string) error

// CaptureFunc captures the authorized online payment backing an order. Bound
// after construction for the same reason as RefundFunc.
type CaptureFunc func(ctx context.Context, orderID uuid.UUID) error

// Actor identifies who is driving a lifecycle operation. A zero Actor is the
// system itself (sweep jobs, webhook-driven transitions).
type Actor struct {
	ID       uuid.UUID
	Role     enums.UserRole
	VendorID *uuid.UUID
}

// System is the actor recorded for job- and webhook-driven transitions.
var System = Actor{}

// CreateInput places an order from the buyer's active cart.
type CreateInput struct {
	BuyerID     uuid.UUID
	Address     types.Address
	PaymentMode enums.PaymentMode
}

// DeliverInput closes out a delivery. OTP must match the code generated at
// placement.
type DeliverInput struct {
	OrderID      uuid.UUID
	PartnerID    uuid.UUID
	OTP          string
	CODCollected bool
}

// Page is one cursor page of orders.
type Page struct {
	Orders     []models.Order
	NextCursor string
}

// Service is the order lifecycle state machine. Every transition runs as a
// conditional update so two concurrent operations on the same order cannot
// both win, and every transition is logged and mirrored to the outbox.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	StatusLogs(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.OrderStatusLog, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*Page, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, status enums.OrderStatus, params pagination.Params) (*Page, error)
	ListForPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*Page, error)

	Accept(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	MarkPicked(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkPacked(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	AssignPartner(ctx context.Context, orderID, partnerID uuid.UUID, actor Actor) (*models.Order, error)
	ReassignPartner(ctx context.Context, orderID, partnerID uuid.UUID, notes string, actor Actor) (*models.Order, error)
	MarkDelivered(ctx context.Context, input DeliverInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	AutoCancelStalePlaced(ctx context.Context, now time.Time, limit int) (int, error)

	// CancelExpiredTx cancels a still-placed order inside the reservation
	// expiry sweep's transaction so the released holds and the cancellation
	// commit together.
	CancelExpiredTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error

	// Payment hooks, driven by the payment service.
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error
	MarkRefundProcessedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error

	// MarkReturnedTx flips a delivered order to returned inside the return
	// workflow's transaction.
	MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) error

	// BindRefunds and BindCapture wire the payment-service hooks once it
	// exists.
	BindRefunds(fn RefundFunc)
	BindCapture(fn CaptureFunc)
}

type service struct {
	repo    Repository
	cart    cartSource
	holds   reservationManager
	tx      txRunner
	outbox  outboxPublisher
	cfg     config.OrdersConfig
	refunds RefundFunc
	capture CaptureFunc
	now     func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, cartSvc cartSource, holds reservationManager, tx txRunner, outboxSvc outboxPublisher, cfg config.OrdersConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartSvc == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if holds == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, cart: cartSvc, holds: holds, tx: tx, outbox: outboxSvc, cfg: cfg, now: time.Now}, nil
}

func (s *service) BindRefunds(fn RefundFunc) {
	s.refunds = fn
}

func (s *service) BindCapture(fn CaptureFunc) {
	s.capture = fn
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if !input.PaymentMode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment mode")
	}
	if err := validateAddress(input.Address); err != nil {
		return nil, err
	}

	summary, err := s.cart.BuildSummary(ctx, input.BuyerID, input.Address.PostalCode)
	if err != nil {
		return nil, err
	}
	if !summary.IsValid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is not ready for checkout").
			WithDetails(summary.ValidationErrors)
	}

	otp, err := security.GenerateDeliveryOTP()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate delivery otp")
	}

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order, err := s.placeOnce(ctx, input, summary, otp)
		if err == nil {
			return order, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "order number collision persisted")
}

func (s *service) placeOnce(ctx context.Context, input CreateInput, summary *cart.Summary, otp string) (*models.Order, error) {
	now := s.now().UTC()
	orderNumber, err := security.GenerateOrderNumber(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	address := input.Address
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     orderNumber,
		BuyerID:         input.BuyerID,
		VendorID:        summary.VendorID,
		Status:          enums.OrderStatusPlaced,
		PaymentMode:     input.PaymentMode,
		PaymentStatus:   enums.OrderPaymentPending,
		Subtotal:        summary.Subtotal,
		DeliveryFee:     summary.DeliveryFee,
		TaxAmount:       summary.TaxAmount,
		DiscountAmount:  summary.DiscountAmount,
		TotalAmount:     summary.TotalAmount,
		DeliveryAddress: &address,
		DeliveryOTP:     otp,
		PlacedAt:        now,
	}

	lines := make([]reservations.ReserveLine, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:               uuid.New(),
			OrderID:          order.ID,
			ProductID:        line.ProductID,
			Name:             line.ProductName,
			SKU:              line.SKU,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			UnitValue:        line.UnitValue,
			TotalPrice:       line.LineTotal,
			ReturnEligible:   line.ReturnEligible,
			ReturnWindowDays: line.ReturnWindowDays,
		})
		lines = append(lines, reservations.ReserveLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitValue:   line.UnitValue,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.holds.ReserveForOrderTx(ctx, tx, order.ID, lines, now.Add(s.cfg.ReservationTTL())); err != nil {
			return err
		}
		if err := s.cart.MarkConvertedTx(ctx, tx, summary.CartID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.UserRoleBuyer},
			Version:       1,
			Data: payloads.OrderPlacedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				VendorID:    order.VendorID,
				TotalAmount: order.TotalAmount,
				PaymentMode: order.PaymentMode,
				PlacedAt:    order.PlacedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) StatusLogs(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.OrderStatusLog, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canView(order, actor); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListStatusLogs(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status logs")
	}
	return logs, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, status enums.OrderStatus, params pagination.Params) (*Page, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) ListForPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByPartner(ctx, partnerID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) Accept(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canManage(order, actor); err != nil {
		return nil, err
	}
	if err := checkTransition(order.Status, enums.OrderStatusConfirmed); err != nil {
		return nil, err
	}
	if order.PaymentMode == enums.PaymentModeOnline {
		switch order.PaymentStatus {
		case enums.OrderPaymentPaid:
		case enums.OrderPaymentPending:
			// Acceptance captures the authorized payment; the buyer's money
			// only moves once the vendor commits to the order.
			if s.capture == nil {
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment capture not configured")
			}
			if err := s.capture(ctx, order.ID); err != nil {
				return nil, err
			}
			order, err = s.load(ctx, orderID)
			if err != nil {
				return nil, err
			}
			if order.PaymentStatus != enums.OrderPaymentPaid {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not captured yet, wait for the customer")
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot accept order with payment status %s", order.PaymentStatus))
		}
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.flipStatus(ctx, tx, order, enums.OrderStatusConfirmed, map[string]any{"confirmed_at": now}); err != nil {
			return err
		}
		if err := s.holds.ConfirmTx(ctx, tx, order.ID); err != nil {
			return err
		}
		if err := s.logTransition(ctx, tx, order.ID, order.Status, enums.OrderStatusConfirmed, actor, nil); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, order, enums.EventOrderConfirmed, enums.OrderStatusConfirmed, "", now)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orderID)
}

func (s *service) Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canManage(order, actor); err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only placed orders can be rejected, order is %s", order.Status))
	}
	return s.cancel(ctx, order, actor, reason)
}

func (s *service) MarkPicked(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.simpleTransition(ctx, orderID, actor, enums.OrderStatusPicked, "picked_at")
}

func (s *service) MarkPacked(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.simpleTransition(ctx, orderID, actor, enums.OrderStatusPacked, "packed_at")
}

func (s *service) simpleTransition(ctx context.Context, orderID uuid.UUID, actor Actor, to enums.OrderStatus, stampColumn string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canManage(order, actor); err != nil {
		return nil, err
	}
	if err := checkTransition(order.Status, to); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.flipStatus(ctx, tx, order, to, map[string]any{stampColumn: now}); err != nil {
			return err
		}
		if err := s.logTransition(ctx, tx, order.ID, order.Status, to, actor, nil); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, order, enums.EventOrderStateChanged, to, "", now)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orderID)
}

func (s *service) AssignPartner(ctx context.Context, orderID, partnerID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canManage(order, actor); err != nil {
		return nil, err
	}
	if err := checkTransition(order.Status, enums.OrderStatusOutForDelivery); err != nil {
		return nil, err
	}
	partner, err := s.usablePartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.flipStatus(ctx, tx, order, enums.OrderStatusOutForDelivery, map[string]any{
			"out_for_delivery_at": now,
			"delivery_partner_id": partner.ID,
		}); err != nil {
			return err
		}
		if err := s.openAttempt(ctx, repo, order.ID, partner.ID, now); err != nil {
			return err
		}
		if err := s.logTransition(ctx, tx, order.ID, order.Status, enums.OrderStatusOutForDelivery, actor, nil); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, order, enums.EventOrderOutForDelivery, enums.OrderStatusOutForDelivery, "", now)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orderID)
}

func (s *service) ReassignPartner(ctx context.Context, orderID, partnerID uuid.UUID, notes string, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canManage(order, actor); err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusOutForDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, not out for delivery", order.Status))
	}
	if order.DeliveryPartnerID != nil && *order.DeliveryPartnerID == partnerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is already assigned to this partner")
	}
	partner, err := s.usablePartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if order.DeliveryPartnerID != nil {
			var attemptNotes *string
			if strings.TrimSpace(notes) != "" {
				attemptNotes = &notes
			}
			if _, err := repo.CloseAttempt(ctx, order.ID, *order.DeliveryPartnerID, enums.DeliveryAttemptFailed, attemptNotes, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close delivery attempt")
			}
		}
		res := map[string]any{"delivery_partner_id": partner.ID}
		if _, err := repo.UpdateStatus(ctx, order.ID, order.Status, order.Status, res); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign partner")
		}
		if err := s.openAttempt(ctx, repo, order.ID, partner.ID, now); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryPartnerChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.OrderStateChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				VendorID:    order.VendorID,
				FromStatus:  order.Status,
				ToStatus:    order.Status,
				Reason:      notes,
				ChangedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orderID)
}

func (s *service) MarkDelivered(ctx context.Context, input DeliverInput) (*models.Order, error) {
	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.DeliveryPartnerID == nil || *order.DeliveryPartnerID != input.PartnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this partner")
	}
	if err := checkTransition(order.Status, enums.OrderStatusDelivered); err != nil {
		return nil, err
	}
	if !security.VerifyOTP(order.DeliveryOTP, input.OTP) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "delivery otp does not match")
	}

	now := s.now().UTC()
	set := map[string]any{"delivered_at": now}
	codSettled := false
	if order.PaymentMode == enums.PaymentModeCOD {
		if input.CODCollected {
			set["payment_status"] = enums.OrderPaymentPaid
			codSettled = true
		} else {
			set["payment_status"] = enums.OrderPaymentCODPendingCollection
		}
	}

	actor := Actor{ID: input.PartnerID, Role: enums.UserRoleDeliveryPartner}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.flipStatus(ctx, tx, order, enums.OrderStatusDelivered, set); err != nil {
			return err
		}
		if err := repo.UpdateItemReturnDeadlines(ctx, order.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp return deadlines")
		}
		if _, err := repo.CloseAttempt(ctx, order.ID, input.PartnerID, enums.DeliveryAttemptSuccess, nil, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close delivery attempt")
		}
		if err := s.logTransition(ctx, tx, order.ID, order.Status, enums.OrderStatusDelivered, actor, nil); err != nil {
			return err
		}
		delivered := payloads.OrderDeliveredEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			BuyerID:      order.BuyerID,
			VendorID:     order.VendorID,
			PartnerID:    order.DeliveryPartnerID,
			CODCollected: codSettled,
			DeliveredAt:  now,
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data:          delivered,
		}); err != nil {
			return err
		}
		if codSettled {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCashCollected,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(actor),
				Version:       1,
				Data:          delivered,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, input.OrderID)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case enums.UserRoleBuyer:
		if order.BuyerID != actor.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
		}
	case enums.UserRoleVendor:
		if err := canManage(order, actor); err != nil {
			return nil, err
		}
	case enums.UserRoleAdmin:
	default:
		if actor != System {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel orders")
		}
	}
	if actor != System && !cancellableBy(order.Status, actor.Role) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in %s can no longer be cancelled by %s", order.Status, actor.Role))
	}
	if actor == System {
		if err := checkTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return nil, err
		}
	}
	return s.cancel(ctx, order, actor, reason)
}

// cancel flips the order to cancelled, releases its holds, and, for captured
// online payments, initiates the refund after the transaction commits so
// gateway latency never extends the lock.
func (s *service) cancel(ctx context.Context, order *models.Order, actor Actor, reason string) (*models.Order, error) {
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.flipStatus(ctx, tx, order, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at":  now,
			"cancel_reason": reason,
		}); err != nil {
			return err
		}
		if err := s.holds.ReleaseTx(ctx, tx, order.ID, reason); err != nil {
			return err
		}
		if err := s.logTransition(ctx, tx, order.ID, order.Status, enums.OrderStatusCancelled, actor, &reason); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				VendorID:    order.VendorID,
				Reason:      reason,
				CancelledAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if order.PaymentMode == enums.PaymentModeOnline && order.PaymentStatus == enums.OrderPaymentPaid {
		if s.refunds == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "refund initiator not configured")
		}
		if err := s.refunds(ctx, order.ID, reason); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, order.ID)
}

func (s *service) AutoCancelStalePlaced(ctx context.Context, now time.Time, limit int) (int, error) {
	cutoff := now.Add(-s.cfg.AutoCancelAfter())
	stale, err := s.repo.ListStalePlaced(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale placed orders")
	}

	cancelled := 0
	for i := range stale {
		if _, err := s.cancel(ctx, &stale[i], System, AutoCancelReason); err != nil {
			// Another replica may have moved the order on; skip and continue.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// CancelExpiredTx is the reservation sweep's cancel hook. An order that
// already moved past placed, or that was paid while the sweep ran, is left
// alone; losing the conditional update to a concurrent transition is likewise
// a no-op.
func (s *service) CancelExpiredTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPlaced || order.PaymentStatus == enums.OrderPaymentPaid {
		return nil
	}

	now := s.now().UTC()
	rows, err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusPlaced, enums.OrderStatusCancelled, map[string]any{
		"cancelled_at":  now,
		"cancel_reason": reason,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel expired order")
	}
	if rows == 0 {
		return nil
	}
	if err := s.logTransition(ctx, tx, orderID, enums.OrderStatusPlaced, enums.OrderStatusCancelled, System, &reason); err != nil {
		return err
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			VendorID:    order.VendorID,
			Reason:      reason,
			CancelledAt: now,
		},
	})
}

func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.UpdatePaymentStatus(ctx, orderID, enums.OrderPaymentPending, enums.OrderPaymentPaid)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if rows == 0 {
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.PaymentStatus == enums.OrderPaymentPaid {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment is %s, cannot mark paid", order.PaymentStatus))
	}
	return nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := s.repo.UpdatePaymentStatus(ctx, orderID, enums.OrderPaymentPending, enums.OrderPaymentFailed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil
	}
	order.PaymentStatus = enums.OrderPaymentFailed
	_, err = s.cancel(ctx, order, System, PaymentFailedReason)
	return err
}

func (s *service) MarkRefundProcessedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	rows, err := s.repo.WithTx(tx).UpdatePaymentStatus(ctx, orderID, enums.OrderPaymentPaid, enums.OrderPaymentRefunded)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is not in a refundable state")
	}
	return nil
}

func (s *service) MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := checkTransition(order.Status, enums.OrderStatusReturned); err != nil {
		return err
	}
	rows, err := repo.UpdateStatus(ctx, orderID, order.Status, enums.OrderStatusReturned, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order returned")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order moved concurrently")
	}
	if err := s.logTransition(ctx, tx, orderID, order.Status, enums.OrderStatusReturned, actor, nil); err != nil {
		return err
	}
	return s.emitTransition(ctx, tx, order, enums.EventOrderStateChanged, enums.OrderStatusReturned, "", s.now().UTC())
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// flipStatus applies the conditional transition update and converts a lost
// race into a state conflict.
func (s *service) flipStatus(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, set map[string]any) error {
	rows, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, to, set)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order left %s concurrently", order.Status))
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor Actor, reason *string) error {
	log := &models.OrderStatusLog{
		ID:         uuid.New(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	}
	if actor != System {
		id := actor.ID
		role := actor.Role
		log.ActorID = &id
		log.ActorRole = &role
	}
	if err := s.repo.WithTx(tx).InsertStatusLog(ctx, log); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status log")
	}
	return nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, eventType enums.OutboxEventType, to enums.OrderStatus, reason string, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderStateChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			VendorID:    order.VendorID,
			FromStatus:  order.Status,
			ToStatus:    to,
			Reason:      reason,
			ChangedAt:   at,
		},
	})
}

func (s *service) usablePartner(ctx context.Context, partnerID uuid.UUID) (*models.DeliveryPartner, error) {
	partner, err := s.repo.FindPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery partner not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery partner")
	}
	if !partner.Active || !partner.Available {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery partner is not available")
	}
	return partner, nil
}

func (s *service) openAttempt(ctx context.Context, repo Repository, orderID, partnerID uuid.UUID, now time.Time) error {
	count, err := repo.CountAttempts(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count delivery attempts")
	}
	attempt := &models.DeliveryAttempt{
		ID:            uuid.New(),
		OrderID:       orderID,
		PartnerID:     partnerID,
		AttemptNumber: int(count) + 1,
		Status:        enums.DeliveryAttemptPending,
		StartedAt:     now,
	}
	if err := repo.InsertAttempt(ctx, attempt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open delivery attempt")
	}
	return nil
}

func canView(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.UserRoleAdmin:
		return nil
	case enums.UserRoleBuyer:
		if order.BuyerID == actor.ID {
			return nil
		}
	case enums.UserRoleVendor:
		if actor.VendorID != nil && *actor.VendorID == order.VendorID {
			return nil
		}
	case enums.UserRoleDeliveryPartner:
		if order.DeliveryPartnerID != nil && *order.DeliveryPartnerID == actor.ID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
}

func canManage(order *models.Order, actor Actor) error {
	if actor.Role == enums.UserRoleAdmin {
		return nil
	}
	if actor.Role == enums.UserRoleVendor && actor.VendorID != nil && *actor.VendorID == order.VendorID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage this order")
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor == System {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.ID, Role: actor.Role}
}

func buildPage(rows []models.Order, limit int) *Page {
	trimmed, hasMore := pagination.TrimPage(rows, limit)
	page := &Page{Orders: trimmed}
	if hasMore && len(trimmed) > 0 {
		last := trimmed[len(trimmed)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page
}

func validateAddress(addr types.Address) error {
	missing := []string{}
	if strings.TrimSpace(addr.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(addr.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation,
			"delivery address missing "+strings.Join(missing, ", "))
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
