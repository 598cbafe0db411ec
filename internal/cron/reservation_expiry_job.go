package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

const reservationExpiryBatch = 100

type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
	BatchSize    int
}

type reservationExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewReservationExpiryJob releases stock held by reservations whose TTL has
// lapsed without the order being paid or confirmed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = reservationExpiryBatch
	}
	return &reservationExpiryJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
	batch        int
	now          func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	released, err := j.reservations.ExpireStale(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	if released == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "reservations_released", released), "expired reservations released")
	return nil
}
