package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/kartmitra/kartmitra-backend/internal/payouts"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

const defaultPayoutPeriodDays = 7

type PayoutBatchJobParams struct {
	Logger     *logger.Logger
	Payouts    payoutGenerator
	PeriodDays int
}

type payoutGenerator interface {
	GeneratePayoutBatch(ctx context.Context, period payouts.Period) (int, error)
}

// NewPayoutBatchJob generates pending payouts for every vendor with
// deliveries in the period that just closed. Generation is idempotent per
// vendor and period, so running the job more often than the period length is
// safe.
func NewPayoutBatchJob(params PayoutBatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	periodDays := params.PeriodDays
	if periodDays <= 0 {
		periodDays = defaultPayoutPeriodDays
	}
	return &payoutBatchJob{
		logg:       params.Logger,
		payouts:    params.Payouts,
		periodDays: periodDays,
		now:        time.Now,
	}, nil
}

type payoutBatchJob struct {
	logg       *logger.Logger
	payouts    payoutGenerator
	periodDays int
	now        func() time.Time
}

func (j *payoutBatchJob) Name() string { return "payout-batch" }

func (j *payoutBatchJob) Run(ctx context.Context) error {
	period := payouts.PeriodEnding(j.now().UTC(), j.periodDays)
	created, err := j.payouts.GeneratePayoutBatch(ctx, period)
	if err != nil {
		return fmt.Errorf("generate payout batch: %w", err)
	}
	if created == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"period_start":    period.Start,
		"period_end":      period.End,
		"payouts_created": created,
	})
	j.logg.Info(logCtx, "payout batch generated")
	return nil
}
