package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

// minRejectReasonLen keeps vendors from rejecting with a throwaway string;
// the buyer reads this text.
const minRejectReasonLen = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type restocker interface {
	RestockReturnTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty decimal.Decimal, referenceID uuid.UUID) error
}

type orderFlipper interface {
	MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor) error
}

type refundInitiator interface {
	Refund(ctx context.Context, input payments.RefundInput) (*models.Refund, error)
}

// RequestInput opens a return on a single delivered order item.
type RequestInput struct {
	BuyerID     uuid.UUID
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	Reason      string
}

// Page is one cursor page of return requests.
type Page struct {
	Requests   []models.ReturnRequest
	NextCursor string
}

// Service runs the post-delivery return workflow: buyer requests, vendor or
// admin moderates, approval restores stock and (for online orders) initiates
// the refund, and the refund's settlement completes the request.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*Page, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, status enums.ReturnStatus, params pagination.Params) (*Page, error)

	Approve(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error)
	Reject(ctx context.Context, id uuid.UUID, actor orders.Actor, reason string) (*models.ReturnRequest, error)

	// Complete moves an approved request to its terminal state. The payment
	// service invokes it once the refund is processed; for cash orders an
	// admin invokes it after settling the refund by hand.
	Complete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo    Repository
	stock   restocker
	orders  orderFlipper
	refunds refundInitiator
	tx      txRunner
	outbox  outboxPublisher
}

// NewService builds the return workflow service.
func NewService(repo Repository, stock restocker, ordersSvc orderFlipper, refunds refundInitiator, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{repo: repo, stock: stock, orders: ordersSvc, refunds: refunds, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.ReturnRequest, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this buyer")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("returns are only accepted on delivered orders, order is %s", order.Status))
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason is required")
	}

	item, err := s.repo.FindOrderItem(ctx, input.OrderID, input.OrderItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	if !item.ReturnEligible {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is not eligible for return")
	}
	if item.ReturnDeadline == nil || time.Now().UTC().After(*item.ReturnDeadline) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return window expired")
	}

	// A live request on the item makes the operation idempotent.
	if existing, err := s.repo.FindActiveByItem(ctx, input.OrderItemID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active returns")
	}

	request := &models.ReturnRequest{
		ID:           uuid.New(),
		OrderID:      order.ID,
		OrderItemID:  item.ID,
		BuyerID:      order.BuyerID,
		VendorID:     order.VendorID,
		Reason:       input.Reason,
		Status:       enums.ReturnStatusRequested,
		RefundAmount: item.TotalPrice,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		return s.emitStatus(ctx, tx, enums.EventReturnRequested, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(request, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "return request is not visible to this user")
	}
	return request, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, status enums.ReturnStatus, params pagination.Params) (*Page, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid return status %q", status))
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	return buildPage(rows, params.Limit), nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModerate(request, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the vendor or an admin can approve a return")
	}
	if request.Status != enums.ReturnStatusRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return request is %s, only requested returns can be approved", request.Status))
	}

	item, err := s.repo.FindOrderItem(ctx, request.OrderID, request.OrderItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateStatus(ctx, request.ID, enums.ReturnStatusRequested, enums.ReturnStatusApproved, map[string]any{
			"approved_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve return")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request left requested concurrently")
		}
		restockQty := item.UnitValue.Mul(item.Quantity)
		if err := s.stock.RestockReturnTx(ctx, tx, item.ProductID, restockQty, request.ID); err != nil {
			return err
		}
		request.Status = enums.ReturnStatusApproved
		request.ApprovedAt = &now
		return s.emitStatus(ctx, tx, enums.EventReturnApproved, request)
	})
	if err != nil {
		return nil, err
	}

	// Online refunds run after commit so gateway latency never holds the
	// restock transaction open. The call is idempotent per return request,
	// so a failed initiation can simply be retried.
	order, err := s.loadOrder(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMode == enums.PaymentModeOnline {
		if _, err := s.refunds.Refund(ctx, payments.RefundInput{
			OrderID:         request.OrderID,
			Amount:          request.RefundAmount,
			Reason:          "return approved",
			ReturnRequestID: &request.ID,
		}); err != nil {
			return request, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiate refund for approved return")
		}
	}
	return request, nil
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, actor orders.Actor, reason string) (*models.ReturnRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModerate(request, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the vendor or an admin can reject a return")
	}
	if request.Status != enums.ReturnStatusRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return request is %s, only requested returns can be rejected", request.Status))
	}
	if len(reason) < minRejectReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason must explain the decision to the buyer")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateStatus(ctx, request.ID, enums.ReturnStatusRequested, enums.ReturnStatusRejected, map[string]any{
			"rejected_at":   now,
			"reject_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject return")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request left requested concurrently")
		}
		request.Status = enums.ReturnStatusRejected
		request.RejectedAt = &now
		request.RejectReason = &reason
		return s.emitStatus(ctx, tx, enums.EventReturnRejected, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) Complete(ctx context.Context, id uuid.UUID) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if request.Status == enums.ReturnStatusCompleted {
		return nil
	}
	if request.Status != enums.ReturnStatusApproved {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return request is %s, only approved returns can be completed", request.Status))
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateStatus(ctx, request.ID, enums.ReturnStatusApproved, enums.ReturnStatusCompleted, map[string]any{
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete return")
		}
		if rows == 0 {
			// Another writer already completed it.
			return nil
		}
		request.Status = enums.ReturnStatusCompleted
		request.CompletedAt = &now
		if err := s.emitStatus(ctx, tx, enums.EventReturnCompleted, request); err != nil {
			return err
		}
		return s.flipOrderIfFullyReturned(ctx, tx, request.OrderID)
	})
}

// flipOrderIfFullyReturned marks the order returned once every line item has
// a completed return; partial returns leave the order delivered.
func (s *service) flipOrderIfFullyReturned(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	items, err := repo.CountOrderItems(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count order items")
	}
	completed, err := repo.CountCompletedForOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count completed returns")
	}
	if items == 0 || completed < items {
		return nil
	}
	return s.orders.MarkReturnedTx(ctx, tx, orderID, orders.System)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return request, nil
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

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, request *models.ReturnRequest) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   request.ID,
		Data: payloads.ReturnStatusEvent{
			ReturnRequestID: request.ID,
			OrderID:         request.OrderID,
			OrderItemID:     request.OrderItemID,
			BuyerID:         request.BuyerID,
			VendorID:        request.VendorID,
			Status:          request.Status,
			RefundAmount:    request.RefundAmount,
			Reason:          request.Reason,
		},
	})
}

func canView(request *models.ReturnRequest, actor orders.Actor) bool {
	switch actor.Role {
	case enums.UserRoleAdmin:
		return true
	case enums.UserRoleBuyer:
		return actor.ID == request.BuyerID
	case enums.UserRoleVendor:
		return actor.VendorID != nil && *actor.VendorID == request.VendorID
	default:
		return false
	}
}

func canModerate(request *models.ReturnRequest, actor orders.Actor) bool {
	if actor.Role == enums.UserRoleAdmin {
		return true
	}
	return actor.Role == enums.UserRoleVendor && actor.VendorID != nil && *actor.VendorID == request.VendorID
}

func buildPage(rows []models.ReturnRequest, limit int) *Page {
	trimmed, hasMore := pagination.TrimPage(rows, limit)
	page := &Page{Requests: trimmed}
	if hasMore && len(trimmed) > 0 {
		last := trimmed[len(trimmed)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page
}
