package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

const orderAutoCancelBatch = 100

type OrderAutoCancelJobParams struct {
	Logger    *logger.Logger
	Orders    orderAutoCanceller
	BatchSize int
}

type orderAutoCanceller interface {
	AutoCancelStalePlaced(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewOrderAutoCancelJob cancels placed online orders whose payment never
// arrived before the auto-cancel deadline.
func NewOrderAutoCancelJob(params OrderAutoCancelJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = orderAutoCancelBatch
	}
	return &orderAutoCancelJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderAutoCancelJob struct {
	logg   *logger.Logger
	orders orderAutoCanceller
	batch  int
	now    func() time.Time
}

func (j *orderAutoCancelJob) Name() string { return "order-autocancel" }

func (j *orderAutoCancelJob) Run(ctx context.Context) error {
	cancelled, err := j.orders.AutoCancelStalePlaced(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("auto-cancel orders: %w", err)
	}
	if cancelled == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "orders_cancelled", cancelled), "stale placed orders cancelled")
	return nil
}
