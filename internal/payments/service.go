package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/razorpay"
)

// amountTolerance is how far a client-supplied amount may drift from the
// order total before intent creation is refused.
var amountTolerance = decimal.RequireFromString("0.01")

// Payment log events. Gateway webhook names are reused verbatim so replays
// dedupe against the same key the gateway retries with.
const (
	logIntentCreated     = "intent_created"
	logPaymentAuthorized = "payment.authorized"
	logPaymentCaptured   = "payment.captured"
	logPaymentFailed     = "payment.failed"
	logRefundProcessed   = "refund.processed"
	logRefundFailed      = "refund.failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderHooks is the slice of the order lifecycle this service drives.
type orderHooks interface {
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error
	MarkRefundProcessedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// ReturnCompletionFunc completes an approved return once its refund lands.
// Bound after construction because the return workflow depends on this
// service for refund initiation.
type ReturnCompletionFunc func(ctx context.Context, returnRequestID uuid.UUID) error

// CreateIntentInput opens a gateway payment for an order.
type CreateIntentInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Amount  decimal.Decimal
}

// VerifyInput is the client-side callback after checkout. The signature is
// checked first; the gateway is then asked for the authoritative status.
type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// RefundInput reverses a captured payment. A zero Amount means a full refund.
type RefundInput struct {
	OrderID         uuid.UUID
	Amount          decimal.Decimal
	Reason          string
	ReturnRequestID *uuid.UUID
}

// Service reconciles gateway payments with the order lifecycle.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*models.Payment, error)
	Verify(ctx context.Context, input VerifyInput) (*models.Payment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	Refund(ctx context.Context, input RefundInput) (*models.Refund, error)
	RefundForOrder(ctx context.Context, orderID uuid.UUID, reason string) error

	// CaptureForOrder captures the order's authorized payment; the order
	// lifecycle calls it when the vendor accepts.
	CaptureForOrder(ctx context.Context, orderID uuid.UUID) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)

	// BindReturnCompletion wires the return workflow's completion step.
	BindReturnCompletion(fn ReturnCompletionFunc)
}

type service struct {
	repo            Repository
	orders          orderHooks
	gateway         razorpay.Gateway
	tx              txRunner
	outbox          outboxPublisher
	log             *logger.Logger
	completeReturns ReturnCompletionFunc
}

// NewService builds the payment reconciliation service.
func NewService(repo Repository, orders orderHooks, gateway razorpay.Gateway, tx txRunner, outboxSvc outboxPublisher, log *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order hooks required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, orders: orders, gateway: gateway, tx: tx, outbox: outboxSvc, log: log}, nil
}

func (s *service) BindReturnCompletion(fn ReturnCompletionFunc) {
	s.completeReturns = fn
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*models.Payment, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.BuyerID != uuid.Nil && order.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
	}
	if order.PaymentMode != enums.PaymentModeOnline {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not an online payment order")
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in %s is not payable", order.Status))
	}
	if !input.Amount.Sub(order.TotalAmount).Abs().LessThanOrEqual(amountTolerance) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount %s does not match order total %s", input.Amount, order.TotalAmount))
	}

	// Idempotent: an open attempt is returned as-is.
	existing, err := s.repo.FindNonTerminalByOrder(ctx, order.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, razorpay.OrderCreateParams{
		AmountPaise: razorpay.ToPaise(order.TotalAmount),
		Currency:    "INR",
		Receipt:     order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Amount:         order.TotalAmount,
		Currency:       "INR",
		Status:         enums.PaymentStatusCreated,
		GatewayOrderID: &gwOrder.ID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
		}
		_, err := repo.InsertLog(ctx, &models.PaymentLog{
			ID:        uuid.New(),
			PaymentID: payment.ID,
			Event:     logIntentCreated,
			Payload:   mustJSON(map[string]any{"gateway_order_id": gwOrder.ID, "amount": order.TotalAmount}),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) Verify(ctx context.Context, input VerifyInput) (*models.Payment, error) {
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order and payment ids required")
	}
	if !s.gateway.VerifyPayment(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature verification failed")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment for gateway order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	// Never trust the client's word for the status.
	gwPayment, err := s.gateway.FetchPayment(ctx, input.GatewayPaymentID)
	if err != nil {
		return nil, err
	}

	switch gwPayment.Status {
	case razorpay.PaymentStatusCaptured:
		if err := s.applyCapture(ctx, payment, gwPayment); err != nil {
			return nil, err
		}
	case razorpay.PaymentStatusAuthorized:
		if err := s.applyAuthorized(ctx, payment, gwPayment); err != nil {
			return nil, err
		}
	case razorpay.PaymentStatusFailed:
		if err := s.applyFailure(ctx, payment, gwPayment); err != nil {
			return nil, err
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("gateway reports payment %s", gwPayment.Status))
	}
	return s.repo.FindByID(ctx, payment.ID)
}

// HandleWebhook applies a gateway event. Signature failures are the only
// errors surfaced; everything else is logged and swallowed so the gateway
// sees success and does not retry side effects we already applied.
func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhook(body, signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature verification failed")
	}

	event, err := razorpay.ParseWebhookEvent(body)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "webhook body did not parse, ignoring")
		return nil
	}

	switch event.Event {
	case logPaymentAuthorized, logPaymentCaptured, logPaymentFailed:
		s.applyPaymentEvent(ctx, event)
	case logRefundProcessed, logRefundFailed:
		s.applyRefundEvent(ctx, event)
	default:
		s.log.Info(s.log.WithField(ctx, "event", event.Event), "ignoring unhandled webhook event")
	}
	return nil
}

func (s *service) applyPaymentEvent(ctx context.Context, event *razorpay.WebhookEvent) {
	entity := event.Payload.Payment.Entity
	payment, err := s.repo.FindByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "gateway_order_id", entity.OrderID), "webhook for unknown payment, ignoring")
		return
	}

	switch event.Event {
	case logPaymentCaptured:
		err = s.applyCapture(ctx, payment, &entity)
	case logPaymentAuthorized:
		err = s.applyAuthorized(ctx, payment, &entity)
	case logPaymentFailed:
		err = s.applyFailure(ctx, payment, &entity)
	}
	if err != nil {
		s.log.Error(s.log.WithField(ctx, "payment_id", payment.ID.String()), "webhook apply failed", err)
	}
}

func (s *service) applyCapture(ctx context.Context, payment *models.Payment, gw *razorpay.Payment) error {
	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.InsertLog(ctx, &models.PaymentLog{
			ID:               uuid.New(),
			PaymentID:        payment.ID,
			Event:            logPaymentCaptured,
			GatewayPaymentID: &gw.ID,
			Payload:          mustJSON(gw),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture log")
		}
		if !fresh {
			// Replay; the capture already happened.
			return nil
		}

		rows, err := repo.UpdateStatus(ctx, payment.ID,
			[]enums.PaymentStatus{enums.PaymentStatusCreated, enums.PaymentStatusAuthorized},
			enums.PaymentStatusCaptured,
			map[string]any{"gateway_payment_id": gw.ID, "captured_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment captured")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not capturable")
		}
		if err := s.orders.MarkPaidTx(ctx, tx, payment.OrderID); err != nil {
			return err
		}

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Data: payloads.PaymentStatusEvent{
				PaymentID:        payment.ID,
				OrderID:          payment.OrderID,
				BuyerID:          order.BuyerID,
				Status:           enums.PaymentStatusCaptured,
				Amount:           payment.Amount,
				GatewayPaymentID: gw.ID,
			},
		})
	})
}

func (s *service) applyAuthorized(ctx context.Context, payment *models.Payment, gw *razorpay.Payment) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.InsertLog(ctx, &models.PaymentLog{
			ID:               uuid.New(),
			PaymentID:        payment.ID,
			Event:            logPaymentAuthorized,
			GatewayPaymentID: &gw.ID,
			Payload:          mustJSON(gw),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record authorization log")
		}
		if !fresh {
			return nil
		}
		if _, err := repo.UpdateStatus(ctx, payment.ID,
			[]enums.PaymentStatus{enums.PaymentStatusCreated},
			enums.PaymentStatusAuthorized,
			map[string]any{"gateway_payment_id": gw.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment authorized")
		}
		return nil
	})
}

func (s *service) applyFailure(ctx context.Context, payment *models.Payment, gw *razorpay.Payment) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.InsertLog(ctx, &models.PaymentLog{
			ID:               uuid.New(),
			PaymentID:        payment.ID,
			Event:            logPaymentFailed,
			GatewayPaymentID: &gw.ID,
			Payload:          mustJSON(gw),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record failure log")
		}
		if !fresh {
			return nil
		}

		set := map[string]any{"gateway_payment_id": gw.ID}
		if gw.ErrorDescription != "" {
			set["failure_reason"] = gw.ErrorDescription
		}
		rows, err := repo.UpdateStatus(ctx, payment.ID,
			[]enums.PaymentStatus{enums.PaymentStatusCreated, enums.PaymentStatusAuthorized},
			enums.PaymentStatusFailed, set)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if rows == 0 {
			return nil
		}

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Data: payloads.PaymentStatusEvent{
				PaymentID:        payment.ID,
				OrderID:          payment.OrderID,
				BuyerID:          order.BuyerID,
				Status:           enums.PaymentStatusFailed,
				Amount:           payment.Amount,
				GatewayPaymentID: gw.ID,
				FailureReason:    gw.ErrorDescription,
			},
		})
	})
	if err != nil {
		return err
	}
	// Cancellation runs its own transaction and releases the held stock.
	return s.orders.MarkPaymentFailed(ctx, payment.OrderID)
}

func (s *service) applyRefundEvent(ctx context.Context, event *razorpay.WebhookEvent) {
	entity := event.Payload.Refund.Entity
	refund, err := s.repo.FindRefundByGatewayID(ctx, entity.ID)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "gateway_refund_id", entity.ID), "webhook for unknown refund, ignoring")
		return
	}

	switch event.Event {
	case logRefundProcessed:
		err = s.finalizeRefund(ctx, refund)
	case logRefundFailed:
		_, err = s.repo.UpdateRefundStatus(ctx, refund.ID, enums.RefundStatusInitiated, enums.RefundStatusFailed, nil)
	}
	if err != nil {
		s.log.Error(s.log.WithField(ctx, "refund_id", refund.ID.String()), "refund webhook apply failed", err)
	}
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Refund, error) {
	payment, err := s.capturedPayment(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = payment.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund amount %s exceeds captured %s", amount, payment.Amount))
	}

	if input.ReturnRequestID != nil {
		existing, err := s.repo.FindRefundByReturnRequest(ctx, *input.ReturnRequestID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
		}
	}

	var reason *string
	if input.Reason != "" {
		r := input.Reason
		reason = &r
	}
	refund := &models.Refund{
		ID:              uuid.New(),
		PaymentID:       payment.ID,
		OrderID:         payment.OrderID,
		ReturnRequestID: input.ReturnRequestID,
		Amount:          amount,
		Status:          enums.RefundStatusInitiated,
		Reason:          reason,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateRefund(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist refund")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   refund.ID,
			Version:       1,
			Data: payloads.RefundStatusEvent{
				RefundID:        refund.ID,
				PaymentID:       payment.ID,
				OrderID:         payment.OrderID,
				ReturnRequestID: input.ReturnRequestID,
				Amount:          amount,
				Status:          enums.RefundStatusInitiated,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// Local state is committed before the gateway call so a crash mid-call
	// leaves an initiated refund to reconcile, never a silent double refund.
	gwRefund, err := s.gateway.CreateRefund(ctx, derefStr(payment.GatewayPaymentID), razorpay.RefundCreateParams{
		AmountPaise: razorpay.ToPaise(amount),
	})
	if err != nil {
		if _, uerr := s.repo.UpdateRefundStatus(ctx, refund.ID, enums.RefundStatusInitiated, enums.RefundStatusFailed,
			map[string]any{"failure_reason": err.Error()}); uerr != nil {
			s.log.Error(ctx, "marking refund failed", uerr)
		}
		return nil, err
	}

	if _, err := s.repo.UpdateRefundStatus(ctx, refund.ID, enums.RefundStatusInitiated, enums.RefundStatusInitiated,
		map[string]any{"gateway_refund_id": gwRefund.ID}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway refund id")
	}
	refund.GatewayRefundID = &gwRefund.ID

	if gwRefund.Status == razorpay.RefundStatusProcessed {
		if err := s.finalizeRefund(ctx, refund); err != nil {
			return nil, err
		}
	}
	return s.repo.FindRefundByID(ctx, refund.ID)
}

// finalizeRefund marks the refund processed, settles the order when the
// refund covers the full capture, and completes the linked return. Safe to
// call twice; the conditional update makes replays no-ops.
func (s *service) finalizeRefund(ctx context.Context, refund *models.Refund) error {
	now := time.Now().UTC()
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateRefundStatus(ctx, refund.ID, enums.RefundStatusInitiated, enums.RefundStatusProcessed,
			map[string]any{"processed_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund processed")
		}
		if rows == 0 {
			return nil
		}
		applied = true

		payment, err := repo.FindByID(ctx, refund.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if refund.Amount.Equal(payment.Amount) {
			if _, err := repo.UpdateStatus(ctx, payment.ID,
				[]enums.PaymentStatus{enums.PaymentStatusCaptured},
				enums.PaymentStatusRefunded, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
			}
			if err := s.orders.MarkRefundProcessedTx(ctx, tx, refund.OrderID); err != nil {
				return err
			}
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundProcessed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   refund.ID,
			Version:       1,
			Data: payloads.RefundStatusEvent{
				RefundID:        refund.ID,
				PaymentID:       refund.PaymentID,
				OrderID:         refund.OrderID,
				ReturnRequestID: refund.ReturnRequestID,
				Amount:          refund.Amount,
				Status:          enums.RefundStatusProcessed,
			},
		})
	})
	if err != nil {
		return err
	}

	if applied && refund.ReturnRequestID != nil && s.completeReturns != nil {
		return s.completeReturns(ctx, *refund.ReturnRequestID)
	}
	return nil
}

// CaptureForOrder moves the order's authorized payment to captured at the
// gateway and reconciles it locally. Already-captured payments make it a
// no-op so retried accepts converge.
func (s *service) CaptureForOrder(ctx context.Context, orderID uuid.UUID) error {
	payment, err := s.repo.FindByStatusForOrder(ctx, orderID, enums.PaymentStatusAuthorized)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if _, cerr := s.repo.FindByStatusForOrder(ctx, orderID, enums.PaymentStatusCaptured); cerr == nil {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no authorized payment to capture")
	}
	if payment.GatewayPaymentID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "authorized payment has no gateway reference")
	}

	gwPayment, err := s.gateway.CapturePayment(ctx, *payment.GatewayPaymentID, razorpay.CaptureParams{
		AmountPaise: razorpay.ToPaise(payment.Amount),
		Currency:    payment.Currency,
	})
	if err != nil {
		return err
	}
	if gwPayment.Status != razorpay.PaymentStatusCaptured {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("gateway reports payment %s after capture", gwPayment.Status))
	}
	return s.applyCapture(ctx, payment, gwPayment)
}

// RefundForOrder reverses the full captured amount; the order lifecycle calls
// it when a paid order is cancelled.
func (s *service) RefundForOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	_, err := s.Refund(ctx, RefundInput{OrderID: orderID, Reason: reason})
	return err
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

func (s *service) capturedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByStatusForOrder(ctx, orderID, enums.PaymentStatusCaptured)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no captured payment to refund")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.GatewayPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "captured payment has no gateway reference")
	}
	return payment, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
