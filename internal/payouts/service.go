package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Period is a half-open settlement window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodEnding derives the settlement window that closes at the given
// instant, using the configured period length.
func PeriodEnding(end time.Time, days int) Period {
	if days <= 0 {
		days = 7
	}
	end = end.UTC().Truncate(24 * time.Hour)
	return Period{Start: end.AddDate(0, 0, -days), End: end}
}

// Earnings is the commission math for one vendor over a period, before any
// payout row exists.
type Earnings struct {
	VendorID         uuid.UUID
	Period           Period
	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	RefundDeductions decimal.Decimal
	NetAmount        decimal.Decimal
	Lines            []EarningsLine
}

// EarningsLine is one delivered order's contribution.
type EarningsLine struct {
	OrderID          uuid.UUID
	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	RefundDeductions decimal.Decimal
	NetAmount        decimal.Decimal
}

// Page is one cursor page of payouts.
type Page struct {
	Payouts    []models.VendorPayout
	NextCursor string
}

// Service computes vendor earnings over delivered orders and turns them into
// payout rows. Payouts only record settlement; money moves out of band.
type Service interface {
	CalculateEarnings(ctx context.Context, vendorID uuid.UUID, period Period) (*Earnings, error)
	GeneratePayout(ctx context.Context, vendorID uuid.UUID, period Period) (*models.VendorPayout, error)

	// GeneratePayoutBatch runs GeneratePayout for every vendor with
	// deliveries in the period and reports how many payouts were created.
	GeneratePayoutBatch(ctx context.Context, period Period) (int, error)

	ProcessPayout(ctx context.Context, payoutID uuid.UUID, transactionID string) (*models.VendorPayout, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*models.VendorPayout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*Page, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	commission decimal.Decimal
}

// NewService builds the payout ledger service.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, cfg config.PayoutsConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	commission, err := cfg.Commission()
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc, commission: commission}, nil
}

func (s *service) CalculateEarnings(ctx context.Context, vendorID uuid.UUID, period Period) (*Earnings, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListDeliveredOrders(ctx, vendorID, period.Start, period.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivered orders")
	}

	earnings := &Earnings{
		VendorID:         vendorID,
		Period:           period,
		GrossAmount:      decimal.Zero,
		CommissionAmount: decimal.Zero,
		RefundDeductions: decimal.Zero,
		NetAmount:        decimal.Zero,
	}
	pct := s.commission.Div(decimal.NewFromInt(100))
	for _, order := range orders {
		deductions, err := s.repo.SumProcessedRefunds(ctx, order.ID, period.Start, period.End)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
		}
		line := EarningsLine{
			OrderID:          order.ID,
			GrossAmount:      order.TotalAmount,
			CommissionAmount: order.TotalAmount.Mul(pct).Round(2),
			RefundDeductions: deductions,
		}
		line.NetAmount = line.GrossAmount.Sub(line.CommissionAmount).Sub(line.RefundDeductions)
		earnings.Lines = append(earnings.Lines, line)
		earnings.GrossAmount = earnings.GrossAmount.Add(line.GrossAmount)
		earnings.CommissionAmount = earnings.CommissionAmount.Add(line.CommissionAmount)
		earnings.RefundDeductions = earnings.RefundDeductions.Add(line.RefundDeductions)
		earnings.NetAmount = earnings.NetAmount.Add(line.NetAmount)
	}
	return earnings, nil
}

func (s *service) GeneratePayout(ctx context.Context, vendorID uuid.UUID, period Period) (*models.VendorPayout, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	// Regenerating an existing (vendor, period) hands back the stored payout
	// unchanged.
	if existing, err := s.repo.FindByPeriod(ctx, vendorID, period.Start, period.End); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up payout")
	}

	earnings, err := s.CalculateEarnings(ctx, vendorID, period)
	if err != nil {
		return nil, err
	}
	if earnings.NetAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("vendor earned %s net for the period, nothing to pay out", earnings.NetAmount))
	}

	payout := &models.VendorPayout{
		ID:               uuid.New(),
		VendorID:         vendorID,
		PeriodStart:      period.Start,
		PeriodEnd:        period.End,
		GrossAmount:      earnings.GrossAmount,
		CommissionAmount: earnings.CommissionAmount,
		RefundDeductions: earnings.RefundDeductions,
		NetAmount:        earnings.NetAmount,
		Status:           enums.PayoutStatusPending,
	}
	for _, line := range earnings.Lines {
		payout.Items = append(payout.Items, models.PayoutItem{
			ID:               uuid.New(),
			PayoutID:         payout.ID,
			OrderID:          line.OrderID,
			GrossAmount:      line.GrossAmount,
			CommissionAmount: line.CommissionAmount,
			RefundDeductions: line.RefundDeductions,
			NetAmount:        line.NetAmount,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, enums.EventPayoutBatchGenerated, payout)
	})
	if err != nil {
		// A concurrent generator for the same period wins the unique index;
		// hand back its row.
		if isDuplicateKey(err) {
			return s.repo.FindByPeriod(ctx, vendorID, period.Start, period.End)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	return payout, nil
}

func (s *service) GeneratePayoutBatch(ctx context.Context, period Period) (int, error) {
	if err := validatePeriod(period); err != nil {
		return 0, err
	}
	vendorIDs, err := s.repo.ListVendorsWithDeliveries(ctx, period.Start, period.End)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}

	created := 0
	for _, vendorID := range vendorIDs {
		if _, err := s.repo.FindByPeriod(ctx, vendorID, period.Start, period.End); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up payout")
		}
		if _, err := s.GeneratePayout(ctx, vendorID, period); err != nil {
			// Nothing-to-pay vendors are expected in a sweep.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *service) ProcessPayout(ctx context.Context, payoutID uuid.UUID, transactionID string) (*models.VendorPayout, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payout is %s, only pending payouts can be processed", payout.Status))
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateStatus(ctx, payoutID, enums.PayoutStatusPending, enums.PayoutStatusProcessed, map[string]any{
			"transaction_id": transactionID,
			"processed_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process payout")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout left pending concurrently")
		}
		payout.Status = enums.PayoutStatusProcessed
		payout.TransactionID = &transactionID
		payout.ProcessedAt = &now
		return s.emitStatus(ctx, tx, enums.EventPayoutProcessed, payout)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *service) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*models.VendorPayout, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payout is %s, only pending payouts can fail", payout.Status))
	}
	rows, err := s.repo.UpdateStatus(ctx, payoutID, enums.PayoutStatusPending, enums.PayoutStatusFailed, map[string]any{
		"failure_reason": reason,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payout")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout left pending concurrently")
	}
	payout.FailureReason = &reason
	payout.Status = enums.PayoutStatusFailed
	return payout, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	trimmed, hasMore := pagination.TrimPage(rows, params.Limit)
	page := &Page{Payouts: trimmed}
	if hasMore && len(trimmed) > 0 {
		last := trimmed[len(trimmed)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.VendorPayout) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateVendorPayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutStatusEvent{
			PayoutID:    payout.ID,
			VendorID:    payout.VendorID,
			PeriodStart: payout.PeriodStart,
			PeriodEnd:   payout.PeriodEnd,
			NetAmount:   payout.NetAmount,
			Status:      payout.Status,
		},
	})
}

func validatePeriod(period Period) error {
	if period.Start.IsZero() || period.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout period is required")
	}
	if !period.End.After(period.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout period end must be after start")
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
