package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:payouts_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.Refund{},
		&models.VendorPayout{},
		&models.PayoutItem{},
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

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, outboxSvc, config.PayoutsConfig{
		CommissionPercent: "10",
		PeriodDays:        7,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func testPeriod() Period {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 0, 7)}
}

func seedDeliveredOrder(t *testing.T, db *gorm.DB, vendorID uuid.UUID, total decimal.Decimal, deliveredAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-" + uuid.NewString()[:12],
		BuyerID:       uuid.New(),
		VendorID:      vendorID,
		Status:        enums.OrderStatusDelivered,
		PaymentMode:   enums.PaymentModeOnline,
		PaymentStatus: enums.OrderPaymentPaid,
		Subtotal:      total,
		TotalAmount:   total,
		DeliveryOTP:   "123456",
		PlacedAt:      deliveredAt.Add(-2 * time.Hour),
		DeliveredAt:   &deliveredAt,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func seedProcessedRefund(t *testing.T, db *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, processedAt time.Time) {
	t.Helper()
	reason := "return approved"
	refund := &models.Refund{
		ID:          uuid.New(),
		PaymentID:   uuid.New(),
		OrderID:     orderID,
		Amount:      amount,
		Status:      enums.RefundStatusProcessed,
		Reason:      &reason,
		ProcessedAt: &processedAt,
	}
	if err := db.Create(refund).Error; err != nil {
		t.Fatalf("seed refund: %v", err)
	}
}

func TestCalculateEarningsAppliesCommissionAndRefunds(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	period := testPeriod()
	vendorID := uuid.New()

	mid := period.Start.Add(36 * time.Hour)
	seedDeliveredOrder(t, db, vendorID, dec("400.00"), mid)
	seedDeliveredOrder(t, db, vendorID, dec("350.00"), mid.Add(24*time.Hour))
	refunded := seedDeliveredOrder(t, db, vendorID, dec("250.00"), mid.Add(48*time.Hour))
	seedProcessedRefund(t, db, refunded.ID, dec("50.00"), mid.Add(60*time.Hour))

	// Outside the window in both directions.
	seedDeliveredOrder(t, db, vendorID, dec("999.00"), period.Start.Add(-time.Hour))
	seedDeliveredOrder(t, db, vendorID, dec("999.00"), period.End.Add(time.Hour))

	earnings, err := svc.CalculateEarnings(ctx, vendorID, period)
	if err != nil {
		t.Fatalf("CalculateEarnings: %v", err)
	}
	if !earnings.GrossAmount.Equal(dec("1000.00")) {
		t.Fatalf("expected gross 1000.00, got %s", earnings.GrossAmount)
	}
	if !earnings.CommissionAmount.Equal(dec("100.00")) {
		t.Fatalf("expected commission 100.00, got %s", earnings.CommissionAmount)
	}
	if !earnings.RefundDeductions.Equal(dec("50.00")) {
		t.Fatalf("expected deductions 50.00, got %s", earnings.RefundDeductions)
	}
	if !earnings.NetAmount.Equal(dec("850.00")) {
		t.Fatalf("expected net 850.00, got %s", earnings.NetAmount)
	}
	if len(earnings.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(earnings.Lines))
	}
}

func TestGeneratePayoutIsIdempotentPerPeriod(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	period := testPeriod()
	vendorID := uuid.New()
	seedDeliveredOrder(t, db, vendorID, dec("500.00"), period.Start.Add(24*time.Hour))

	payout, err := svc.GeneratePayout(ctx, vendorID, period)
	if err != nil {
		t.Fatalf("GeneratePayout: %v", err)
	}
	if payout.Status != enums.PayoutStatusPending {
		t.Fatalf("expected pending, got %s", payout.Status)
	}
	if !payout.NetAmount.Equal(dec("450.00")) {
		t.Fatalf("expected net 450.00, got %s", payout.NetAmount)
	}
	if len(payout.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(payout.Items))
	}

	// New deliveries after generation do not rewrite the stored payout.
	seedDeliveredOrder(t, db, vendorID, dec("300.00"), period.Start.Add(48*time.Hour))
	again, err := svc.GeneratePayout(ctx, vendorID, period)
	if err != nil {
		t.Fatalf("repeat GeneratePayout: %v", err)
	}
	if again.ID != payout.ID {
		t.Fatalf("expected same payout, got %s and %s", payout.ID, again.ID)
	}
	if !again.NetAmount.Equal(dec("450.00")) {
		t.Fatalf("expected unchanged net 450.00, got %s", again.NetAmount)
	}

	var events int64
	db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPayoutBatchGenerated).Count(&events)
	if events != 1 {
		t.Fatalf("expected single batch event, got %d", events)
	}
}

func TestGeneratePayoutSkipsNonPositiveNet(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	period := testPeriod()
	vendorID := uuid.New()

	order := seedDeliveredOrder(t, db, vendorID, dec("100.00"), period.Start.Add(24*time.Hour))
	seedProcessedRefund(t, db, order.ID, dec("100.00"), period.Start.Add(36*time.Hour))

	_, err := svc.GeneratePayout(ctx, vendorID, period)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGeneratePayoutBatchCoversAllVendors(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	period := testPeriod()

	vendorA := uuid.New()
	vendorB := uuid.New()
	seedDeliveredOrder(t, db, vendorA, dec("400.00"), period.Start.Add(24*time.Hour))
	seedDeliveredOrder(t, db, vendorB, dec("600.00"), period.Start.Add(48*time.Hour))

	created, err := svc.GeneratePayoutBatch(ctx, period)
	if err != nil {
		t.Fatalf("GeneratePayoutBatch: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 payouts, got %d", created)
	}

	// Rerun is a no-op.
	created, err = svc.GeneratePayoutBatch(ctx, period)
	if err != nil {
		t.Fatalf("rerun GeneratePayoutBatch: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected idle rerun, got %d", created)
	}
}

func TestProcessPayoutStampsTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	period := testPeriod()
	vendorID := uuid.New()
	seedDeliveredOrder(t, db, vendorID, dec("500.00"), period.Start.Add(24*time.Hour))

	payout, err := svc.GeneratePayout(ctx, vendorID, period)
	if err != nil {
		t.Fatalf("GeneratePayout: %v", err)
	}

	processed, err := svc.ProcessPayout(ctx, payout.ID, "NEFT-20260108-0042")
	if err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}
	if processed.Status != enums.PayoutStatusProcessed || processed.ProcessedAt == nil {
		t.Fatalf("unexpected payout %+v", processed)
	}
	if processed.TransactionID == nil || *processed.TransactionID != "NEFT-20260108-0042" {
		t.Fatalf("unexpected transaction id %v", processed.TransactionID)
	}

	// Processing twice is a state conflict.
	_, err = svc.ProcessPayout(ctx, payout.ID, "NEFT-20260108-0043")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	var events int64
	db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPayoutProcessed).Count(&events)
	if events != 1 {
		t.Fatalf("expected single processed event, got %d", events)
	}
}

func TestListForVendorPaginates(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	vendorID := uuid.New()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		period := Period{Start: start.AddDate(0, 0, i*7), End: start.AddDate(0, 0, (i+1)*7)}
		seedDeliveredOrder(t, db, vendorID, dec("500.00"), period.Start.Add(24*time.Hour))
		if _, err := svc.GeneratePayout(ctx, vendorID, period); err != nil {
			t.Fatalf("GeneratePayout %d: %v", i, err)
		}
	}

	first, err := svc.ListForVendor(ctx, vendorID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("ListForVendor: %v", err)
	}
	if len(first.Payouts) != 2 || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %d rows, cursor %q", len(first.Payouts), first.NextCursor)
	}

	second, err := svc.ListForVendor(ctx, vendorID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("ListForVendor page 2: %v", err)
	}
	if len(second.Payouts) != 1 || second.NextCursor != "" {
		t.Fatalf("unexpected second page: %d rows, cursor %q", len(second.Payouts), second.NextCursor)
	}
}

func TestPeriodEndingDerivesWindow(t *testing.T) {
	end := time.Date(2026, 1, 8, 13, 45, 0, 0, time.UTC)
	period := PeriodEnding(end, 7)
	if !period.End.Equal(time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", period.End)
	}
	if !period.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", period.Start)
	}
}
