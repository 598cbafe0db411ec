package payments

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/reservations"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/razorpay"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:payments_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
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
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusLog{},
		&models.DeliveryAttempt{},
		&models.Payment{},
		&models.PaymentLog{},
		&models.Refund{},
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
	db        *gorm.DB
	svc       Service
	ordersSvc orders.Service
	cartSvc   cart.Service
	gateway   *razorpay.FakeGateway
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

	gateway := razorpay.NewFakeGateway()
	svc, err := NewService(NewRepository(db), ordersSvc, gateway, runner, outboxSvc, log)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ordersSvc.BindRefunds(svc.RefundForOrder)
	ordersSvc.BindCapture(svc.CaptureForOrder)

	return &testEnv{db: db, svc: svc, ordersSvc: ordersSvc, cartSvc: cartSvc, gateway: gateway}
}

func placeOnlineOrder(t *testing.T, env *testEnv) *models.Order {
	t.Helper()
	ctx := context.Background()
	vendorID := uuid.New()
	product := &models.Product{
		ID:        uuid.New(),
		VendorID:  vendorID,
		Name:      "Masala Chai 250g",
		SKU:       "SKU-" + uuid.NewString()[:8],
		Price:     dec("200.00"),
		UnitValue: decimal.NewFromInt(1),
		Active:    true,
	}
	if err := env.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := env.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: dec("20")}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if err := env.db.Create(&models.DeliveryZone{
		ID:       uuid.New(),
		VendorID: vendorID,
		Pincode:  "560001",
		Active:   true,
	}).Error; err != nil {
		t.Fatalf("seed zone: %v", err)
	}

	buyerID := uuid.New()
	if _, err := env.cartSvc.AddItem(ctx, buyerID, product.ID, dec("1")); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	order, err := env.ordersSvc.Create(ctx, orders.CreateInput{
		BuyerID: buyerID,
		Address: types.Address{
			Line1:      "14 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Phone:      "9876543210",
		},
		PaymentMode: enums.PaymentModeOnline,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func createIntent(t *testing.T, env *testEnv, order *models.Order) *models.Payment {
	t.Helper()
	payment, err := env.svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: order.ID,
		BuyerID: order.BuyerID,
		Amount:  order.TotalAmount,
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	return payment
}

func capturedWebhookBody(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured","method":"upi"}}}}`,
		gatewayPaymentID, gatewayOrderID))
}

func TestCreateIntentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	order := placeOnlineOrder(t, env)

	first := createIntent(t, env, order)
	if first.Status != enums.PaymentStatusCreated || first.GatewayOrderID == nil {
		t.Fatalf("unexpected payment %+v", first)
	}

	second := createIntent(t, env, order)
	if second.ID != first.ID {
		t.Fatalf("expected same payment back, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateIntentValidatesAmount(t *testing.T) {
	env := newTestEnv(t)
	order := placeOnlineOrder(t, env)

	_, err := env.svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: order.ID,
		BuyerID: order.BuyerID,
		Amount:  order.TotalAmount.Add(dec("5.00")),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyCapturesAndMarksOrderPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	verified, err := env.svc.Verify(ctx, VerifyInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: "pay_test_123",
		Signature:        "sig",
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Status != enums.PaymentStatusCaptured || verified.CapturedAt == nil {
		t.Fatalf("unexpected payment %+v", verified)
	}

	var stored models.Order
	if err := env.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.PaymentStatus != enums.OrderPaymentPaid {
		t.Fatalf("expected order paid, got %s", stored.PaymentStatus)
	}

	var logs int64
	env.db.Model(&models.PaymentLog{}).Where("event = ?", "payment.captured").Count(&logs)
	if logs != 1 {
		t.Fatalf("expected 1 capture log, got %d", logs)
	}
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	env := newTestEnv(t)
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	_, err := env.svc.Verify(context.Background(), VerifyInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: "pay_test_123",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCaptureForOrderCapturesAuthorized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	// The buyer authorized at checkout; Verify records the authorization but
	// the money only moves on capture.
	gwPaymentID := "pay_auth_" + uuid.NewString()[:8]
	env.gateway.SeedPayment(razorpay.Payment{
		ID:          gwPaymentID,
		OrderID:     *payment.GatewayOrderID,
		AmountPaise: razorpay.ToPaise(payment.Amount),
		Currency:    "INR",
		Status:      razorpay.PaymentStatusAuthorized,
	})
	if _, err := env.svc.Verify(ctx, VerifyInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: gwPaymentID,
		Signature:        "sig",
	}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := env.svc.CaptureForOrder(ctx, order.ID); err != nil {
		t.Fatalf("CaptureForOrder: %v", err)
	}

	stored, err := env.svc.ListByOrder(ctx, order.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("load payments: %v (%d)", err, len(stored))
	}
	if stored[0].Status != enums.PaymentStatusCaptured || stored[0].CapturedAt == nil {
		t.Fatalf("unexpected payment %+v", stored[0])
	}

	var storedOrder models.Order
	if err := env.db.First(&storedOrder, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if storedOrder.PaymentStatus != enums.OrderPaymentPaid {
		t.Fatalf("expected order paid, got %s", storedOrder.PaymentStatus)
	}

	var events int64
	env.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentCaptured).Count(&events)
	if events != 1 {
		t.Fatalf("expected 1 capture event, got %d", events)
	}

	// Already-captured payments make a repeat a no-op.
	if err := env.svc.CaptureForOrder(ctx, order.ID); err != nil {
		t.Fatalf("repeat capture: %v", err)
	}
}

func TestCaptureForOrderWithoutAuthorization(t *testing.T) {
	env := newTestEnv(t)
	order := placeOnlineOrder(t, env)
	createIntent(t, env, order)

	err := env.svc.CaptureForOrder(context.Background(), order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestWebhookCaptureIsReplaySafe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)
	body := capturedWebhookBody(*payment.GatewayOrderID, "pay_wh_1")

	for i := 0; i < 2; i++ {
		if err := env.svc.HandleWebhook(ctx, body, "sig"); err != nil {
			t.Fatalf("HandleWebhook run %d: %v", i+1, err)
		}
	}

	var stored models.Payment
	if err := env.db.First(&stored, "id = ?", payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != enums.PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", stored.Status)
	}

	var logs int64
	env.db.Model(&models.PaymentLog{}).Where("event = ?", "payment.captured").Count(&logs)
	if logs != 1 {
		t.Fatalf("expected single capture log, got %d", logs)
	}

	var events int64
	env.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentCaptured).Count(&events)
	if events != 1 {
		t.Fatalf("expected single capture event, got %d", events)
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.HandleWebhook(context.Background(), []byte(`{"event":"payment.captured"}`), "")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWebhookFailureCancelsPlacedOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	body := []byte(fmt.Sprintf(
		`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_fail_1","order_id":%q,"status":"failed","error_description":"card declined"}}}}`,
		*payment.GatewayOrderID))
	if err := env.svc.HandleWebhook(ctx, body, "sig"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	var storedPayment models.Payment
	if err := env.db.First(&storedPayment, "id = ?", payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if storedPayment.Status != enums.PaymentStatusFailed || storedPayment.FailureReason == nil {
		t.Fatalf("unexpected payment %+v", storedPayment)
	}

	var storedOrder models.Order
	if err := env.db.First(&storedOrder, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if storedOrder.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", storedOrder.Status)
	}

	// Stock went back to the sellable pool.
	var item models.InventoryItem
	if err := env.db.First(&item, "product_id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if !item.ReservedQty.IsZero() {
		t.Fatalf("expected released stock, got reserved %s", item.ReservedQty)
	}
}

func TestRefundFullAmountSettlesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	if _, err := env.svc.Verify(ctx, VerifyInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: "pay_refund_1",
		Signature:        "sig",
	}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	refund, err := env.svc.Refund(ctx, RefundInput{OrderID: order.ID, Reason: "order cancelled"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Status != enums.RefundStatusProcessed || refund.GatewayRefundID == nil {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if !refund.Amount.Equal(order.TotalAmount) {
		t.Fatalf("expected full refund %s, got %s", order.TotalAmount, refund.Amount)
	}

	var storedPayment models.Payment
	env.db.First(&storedPayment, "id = ?", payment.ID)
	if storedPayment.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got %s", storedPayment.Status)
	}

	var storedOrder models.Order
	env.db.First(&storedOrder, "id = ?", order.ID)
	if storedOrder.PaymentStatus != enums.OrderPaymentRefunded {
		t.Fatalf("expected refunded order, got %s", storedOrder.PaymentStatus)
	}

	// A second full refund attempt finds no captured payment.
	_, err = env.svc.Refund(ctx, RefundInput{OrderID: order.ID, Reason: "again"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict on double refund, got %v", err)
	}
}

func TestPartialRefundForReturnCompletesIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := placeOnlineOrder(t, env)
	payment := createIntent(t, env, order)

	if _, err := env.svc.Verify(ctx, VerifyInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: "pay_refund_2",
		Signature:        "sig",
	}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var completed []uuid.UUID
	env.svc.BindReturnCompletion(func(ctx context.Context, returnRequestID uuid.UUID) error {
		completed = append(completed, returnRequestID)
		return nil
	})

	returnID := uuid.New()
	refund, err := env.svc.Refund(ctx, RefundInput{
		OrderID:         order.ID,
		Amount:          dec("100.00"),
		Reason:          "item returned",
		ReturnRequestID: &returnID,
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Status != enums.RefundStatusProcessed {
		t.Fatalf("expected processed, got %s", refund.Status)
	}
	if len(completed) != 1 || completed[0] != returnID {
		t.Fatalf("expected return completion, got %v", completed)
	}

	// Partial refund keeps the payment captured.
	var storedPayment models.Payment
	env.db.First(&storedPayment, "id = ?", payment.ID)
	if storedPayment.Status != enums.PaymentStatusCaptured {
		t.Fatalf("expected captured payment, got %s", storedPayment.Status)
	}

	// Same return request yields the same refund.
	again, err := env.svc.Refund(ctx, RefundInput{
		OrderID:         order.ID,
		Amount:          dec("100.00"),
		ReturnRequestID: &returnID,
	})
	if err != nil {
		t.Fatalf("repeat refund: %v", err)
	}
	if again.ID != refund.ID {
		t.Fatalf("expected existing refund, got %s and %s", refund.ID, again.ID)
	}
}
