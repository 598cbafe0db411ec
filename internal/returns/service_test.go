package returns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	"github.com/kartmitra/kartmitra-backend/internal/reservations"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
	"github.com/kartmitra/kartmitra-backend/pkg/razorpay"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:returns_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.InventoryItem{},
		&models.StockMovement{},
		&models.StockReservation{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.DeliveryZone{},
		&models.DeliveryPartner{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusLog{},
		&models.DeliveryAttempt{},
		&models.Payment{},
		&models.PaymentLog{},
		&models.Refund{},
		&models.ReturnRequest{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	db          *gorm.DB
	svc         Service
	ordersSvc   orders.Service
	paymentsSvc payments.Service
	cartSvc     cart.Service
	vendorID    uuid.UUID
	productID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	runner := gormTxRunner{db: db}
	ordersCfg := config.OrdersConfig{ReservationTTLMinutes: 10, AutoCancelMinutes: 15, TaxPercent: "5"}
	log := logger.New(logger.Options{ServiceName: "test"})

	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	invRepo := inventory.NewRepository(db)
	invSvc, err := inventory.NewService(invRepo, runner, outboxSvc)
	if err != nil {
		t.Fatalf("inventory.NewService: %v", err)
	}
	resvSvc, err := reservations.NewService(reservations.NewRepository(db), invRepo, invSvc, runner, outboxSvc)
	if err != nil {
		t.Fatalf("reservations.NewService: %v", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(db), runner, ordersCfg)
	if err != nil {
		t.Fatalf("cart.NewService: %v", err)
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(db), cartSvc, resvSvc, runner, outboxSvc, ordersCfg)
	if err != nil {
		t.Fatalf("orders.NewService: %v", err)
	}
	paymentsSvc, err := payments.NewService(payments.NewRepository(db), ordersSvc, razorpay.NewFakeGateway(), runner, outboxSvc, log)
	if err != nil {
		t.Fatalf("payments.NewService: %v", err)
	}
	ordersSvc.BindRefunds(paymentsSvc.RefundForOrder)

	svc, err := NewService(NewRepository(db), invSvc, ordersSvc, paymentsSvc, runner, outboxSvc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	paymentsSvc.BindReturnCompletion(svc.Complete)

	env := &testEnv{
		db:          db,
		svc:         svc,
		ordersSvc:   ordersSvc,
		paymentsSvc: paymentsSvc,
		cartSvc:     cartSvc,
		vendorID:    uuid.New(),
		productID:   uuid.New(),
	}
	seedCatalog(t, env)
	return env
}

func seedCatalog(t *testing.T, env *testEnv) {
	t.Helper()
	product := &models.Product{
		ID:               env.productID,
		VendorID:         env.vendorID,
		Name:             "Steel Tiffin Box",
		SKU:              "SKU-" + uuid.NewString()[:8],
		Price:            dec("150.00"),
		UnitValue:        decimal.NewFromInt(1),
		ReturnEligible:   true,
		ReturnWindowDays: 7,
		Active:           true,
	}
	if err := env.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := env.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: dec("20")}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if err := env.db.Create(&models.DeliveryZone{
		ID:       uuid.New(),
		VendorID: env.vendorID,
		Pincode:  "560001",
		Active:   true,
	}).Error; err != nil {
		t.Fatalf("seed zone: %v", err)
	}
}

func vendorActor(env *testEnv) orders.Actor {
	return orders.Actor{ID: uuid.New(), Role: enums.UserRoleVendor, VendorID: &env.vendorID}
}

// deliverOrder walks an order through the full lifecycle so returns become
// possible. Online orders get their payment captured through the fake
// gateway before the vendor accepts.
func deliverOrder(t *testing.T, env *testEnv, mode enums.PaymentMode) *models.Order {
	t.Helper()
	ctx := context.Background()
	buyerID := uuid.New()
	if _, err := env.cartSvc.AddItem(ctx, buyerID, env.productID, dec("2")); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	order, err := env.ordersSvc.Create(ctx, orders.CreateInput{
		BuyerID: buyerID,
		Address: types.Address{
			Line1:      "7 Brigade Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Phone:      "9876543210",
		},
		PaymentMode: mode,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if mode == enums.PaymentModeOnline {
		payment, err := env.paymentsSvc.CreateIntent(ctx, payments.CreateIntentInput{
			OrderID: order.ID,
			BuyerID: buyerID,
			Amount:  order.TotalAmount,
		})
		if err != nil {
			t.Fatalf("create intent: %v", err)
		}
		if _, err := env.paymentsSvc.Verify(ctx, payments.VerifyInput{
			GatewayOrderID:   *payment.GatewayOrderID,
			GatewayPaymentID: "pay_" + uuid.NewString()[:8],
			Signature:        "sig",
		}); err != nil {
			t.Fatalf("verify payment: %v", err)
		}
	}

	vendor := vendorActor(env)
	if _, err := env.ordersSvc.Accept(ctx, order.ID, vendor); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.ordersSvc.MarkPicked(ctx, order.ID, vendor); err != nil {
		t.Fatalf("mark picked: %v", err)
	}
	if _, err := env.ordersSvc.MarkPacked(ctx, order.ID, vendor); err != nil {
		t.Fatalf("mark packed: %v", err)
	}

	partner := &models.DeliveryPartner{ID: uuid.New(), Name: "Ravi", Phone: "9000000001", Active: true, Available: true}
	if err := env.db.Create(partner).Error; err != nil {
		t.Fatalf("seed partner: %v", err)
	}
	if _, err := env.ordersSvc.AssignPartner(ctx, order.ID, partner.ID, vendor); err != nil {
		t.Fatalf("assign partner: %v", err)
	}

	var stored models.Order
	if err := env.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	delivered, err := env.ordersSvc.MarkDelivered(ctx, orders.DeliverInput{
		OrderID:      order.ID,
		PartnerID:    partner.ID,
		OTP:          stored.DeliveryOTP,
		CODCollected: mode == enums.PaymentModeCOD,
	})
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	return delivered
}

func requestReturn(t *testing.T, env *testEnv, order *models.Order, reason string) *models.ReturnRequest {
	t.Helper()
	request, err := env.svc.Request(context.Background(), RequestInput{
		BuyerID:     order.BuyerID,
		OrderID:     order.ID,
		OrderItemID: order.Items[0].ID,
		Reason:      reason,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return request
}

func TestRequestSnapshotsRefundAmount(t *testing.T) {
	env := newTestEnv(t)
	order := deliverOrder(t, env, enums.PaymentModeCOD)

	request := requestReturn(t, env, order, "lid arrived dented")
	if request.Status != enums.ReturnStatusRequested {
		t.Fatalf("expected requested, got %s", request.Status)
	}
	if !request.RefundAmount.Equal(order.Items[0].TotalPrice) {
		t.Fatalf("expected refund %s, got %s", order.Items[0].TotalPrice, request.RefundAmount)
	}

	// A second request on the same item hands back the live one.
	again := requestReturn(t, env, order, "lid arrived dented")
	if again.ID != request.ID {
		t.Fatalf("expected existing request, got %s and %s", request.ID, again.ID)
	}

	var events int64
	env.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReturnRequested).Count(&events)
	if events != 1 {
		t.Fatalf("expected single requested event, got %d", events)
	}
}

func TestRequestRejectsExpiredWindow(t *testing.T) {
	env := newTestEnv(t)
	order := deliverOrder(t, env, enums.PaymentModeCOD)

	past := time.Now().UTC().Add(-time.Hour)
	if err := env.db.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).
		Update("return_deadline", past).Error; err != nil {
		t.Fatalf("backdate deadline: %v", err)
	}

	_, err := env.svc.Request(context.Background(), RequestInput{
		BuyerID:     order.BuyerID,
		OrderID:     order.ID,
		OrderItemID: order.Items[0].ID,
		Reason:      "too late now",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "return window expired" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
}

func TestRequestRequiresDeliveredOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyerID := uuid.New()
	if _, err := env.cartSvc.AddItem(ctx, buyerID, env.productID, dec("1")); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	order, err := env.ordersSvc.Create(ctx, orders.CreateInput{
		BuyerID: buyerID,
		Address: types.Address{
			Line1:      "7 Brigade Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Phone:      "9876543210",
		},
		PaymentMode: enums.PaymentModeCOD,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err = env.svc.Request(ctx, RequestInput{
		BuyerID:     buyerID,
		OrderID:     order.ID,
		OrderItemID: order.Items[0].ID,
		Reason:      "changed my mind",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestApproveRestocksAndRefundsOnlineOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := deliverOrder(t, env, enums.PaymentModeOnline)
	request := requestReturn(t, env, order, "wrong size delivered")

	var before models.InventoryItem
	if err := env.db.First(&before, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}

	approved, err := env.svc.Approve(ctx, request.ID, vendorActor(env))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != enums.ReturnStatusApproved || approved.ApprovedAt == nil {
		t.Fatalf("unexpected request %+v", approved)
	}

	var after models.InventoryItem
	if err := env.db.First(&after, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if !after.AvailableQty.Sub(before.AvailableQty).Equal(dec("2")) {
		t.Fatalf("expected restock of 2, went %s -> %s", before.AvailableQty, after.AvailableQty)
	}

	// The fake gateway settles the refund immediately, which completes the
	// return through the bound hook.
	var stored models.ReturnRequest
	if err := env.db.First(&stored, "id = ?", request.ID).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if stored.Status != enums.ReturnStatusCompleted || stored.CompletedAt == nil {
		t.Fatalf("expected completed request, got %+v", stored)
	}

	var refund models.Refund
	if err := env.db.First(&refund, "return_request_id = ?", request.ID).Error; err != nil {
		t.Fatalf("load refund: %v", err)
	}
	if refund.Status != enums.RefundStatusProcessed {
		t.Fatalf("expected processed refund, got %s", refund.Status)
	}
	if !refund.Amount.Equal(request.RefundAmount) {
		t.Fatalf("expected refund %s, got %s", request.RefundAmount, refund.Amount)
	}

	// The single line item came back, so the order flips to returned.
	var storedOrder models.Order
	if err := env.db.First(&storedOrder, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if storedOrder.Status != enums.OrderStatusReturned {
		t.Fatalf("expected returned order, got %s", storedOrder.Status)
	}
}

func TestApproveCODLeavesRequestApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := deliverOrder(t, env, enums.PaymentModeCOD)
	request := requestReturn(t, env, order, "item leaked in transit")

	approved, err := env.svc.Approve(ctx, request.ID, vendorActor(env))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != enums.ReturnStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	// No gateway refund exists for cash orders; settlement happens by hand
	// and an admin completes the request afterwards.
	var refunds int64
	env.db.Model(&models.Refund{}).Count(&refunds)
	if refunds != 0 {
		t.Fatalf("expected no refunds, got %d", refunds)
	}

	if err := env.svc.Complete(ctx, request.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	var stored models.ReturnRequest
	env.db.First(&stored, "id = ?", request.ID)
	if stored.Status != enums.ReturnStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}

	// Completing again is a no-op.
	if err := env.svc.Complete(ctx, request.ID); err != nil {
		t.Fatalf("repeat Complete: %v", err)
	}
}

func TestApproveRequiresVendorOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	order := deliverOrder(t, env, enums.PaymentModeCOD)
	request := requestReturn(t, env, order, "packaging damaged")

	otherVendor := uuid.New()
	_, err := env.svc.Approve(context.Background(), request.ID, orders.Actor{
		ID:       uuid.New(),
		Role:     enums.UserRoleVendor,
		VendorID: &otherVendor,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRejectNeedsMeaningfulReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := deliverOrder(t, env, enums.PaymentModeCOD)
	request := requestReturn(t, env, order, "does not match photos")

	_, err := env.svc.Reject(ctx, request.ID, vendorActor(env), "no")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	rejected, err := env.svc.Reject(ctx, request.ID, vendorActor(env), "item shows clear signs of use")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != enums.ReturnStatusRejected || rejected.RejectReason == nil {
		t.Fatalf("unexpected request %+v", rejected)
	}

	// Terminal: moderation cannot run again.
	_, err = env.svc.Approve(ctx, request.ID, vendorActor(env))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCompleteRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	order := deliverOrder(t, env, enums.PaymentModeCOD)
	request := requestReturn(t, env, order, "missing accessories")

	err := env.svc.Complete(context.Background(), request.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListForVendorFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := deliverOrder(t, env, enums.PaymentModeCOD)
	second := deliverOrder(t, env, enums.PaymentModeCOD)
	requestReturn(t, env, first, "arrived broken")
	pending := requestReturn(t, env, second, "wrong item shipped")
	if _, err := env.svc.Approve(ctx, pending.ID, vendorActor(env)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	page, err := env.svc.ListForVendor(ctx, env.vendorID, enums.ReturnStatusApproved, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("ListForVendor: %v", err)
	}
	if len(page.Requests) != 1 || page.Requests[0].ID != pending.ID {
		t.Fatalf("unexpected page %+v", page.Requests)
	}

	all, err := env.svc.ListForVendor(ctx, env.vendorID, "", pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("ListForVendor all: %v", err)
	}
	if len(all.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(all.Requests))
	}
}
