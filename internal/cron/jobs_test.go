package cron

import (
	"context"
	"testing"
	"time"

	"github.com/kartmitra/kartmitra-backend/internal/payouts"
)

type fakeExpirer struct {
	released int
	gotLimit int
	gotNow   time.Time
}

func (f *fakeExpirer) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	f.gotNow = now
	f.gotLimit = limit
	return f.released, nil
}

type fakeCanceller struct {
	cancelled int
	gotLimit  int
}

func (f *fakeCanceller) AutoCancelStalePlaced(ctx context.Context, now time.Time, limit int) (int, error) {
	f.gotLimit = limit
	return f.cancelled, nil
}

type fakePayoutGenerator struct {
	created   int
	gotPeriod payouts.Period
}

func (f *fakePayoutGenerator) GeneratePayoutBatch(ctx context.Context, period payouts.Period) (int, error) {
	f.gotPeriod = period
	return f.created, nil
}

type fakeOutboxRetention struct {
	deleted   int64
	gotCutoff time.Time
}

func (f *fakeOutboxRetention) DeleteOlderThan(cutoff time.Time) (int64, error) {
	f.gotCutoff = cutoff
	return f.deleted, nil
}

type fakeNotificationCleanup struct {
	deleted   int64
	gotCutoff time.Time
}

func (f *fakeNotificationCleanup) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.gotCutoff = cutoff
	return f.deleted, nil
}

func TestReservationExpiryJobUsesConfiguredBatch(t *testing.T) {
	expirer := &fakeExpirer{released: 3}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:       newTestLogger(),
		Reservations: expirer,
		BatchSize:    25,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.gotLimit != 25 {
		t.Fatalf("expected batch 25, got %d", expirer.gotLimit)
	}
	if expirer.gotNow.IsZero() {
		t.Fatal("expected a run timestamp")
	}
}

func TestOrderAutoCancelJobDefaultsBatch(t *testing.T) {
	canceller := &fakeCanceller{cancelled: 1}
	job, err := NewOrderAutoCancelJob(OrderAutoCancelJobParams{
		Logger: newTestLogger(),
		Orders: canceller,
	})
	if err != nil {
		t.Fatalf("NewOrderAutoCancelJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if canceller.gotLimit != orderAutoCancelBatch {
		t.Fatalf("expected default batch %d, got %d", orderAutoCancelBatch, canceller.gotLimit)
	}
}

func TestPayoutBatchJobClosesPeriodAtRunTime(t *testing.T) {
	generator := &fakePayoutGenerator{created: 2}
	job, err := NewPayoutBatchJob(PayoutBatchJobParams{
		Logger:     newTestLogger(),
		Payouts:    generator,
		PeriodDays: 7,
	})
	if err != nil {
		t.Fatalf("NewPayoutBatchJob: %v", err)
	}

	now := time.Date(2026, 2, 8, 4, 30, 0, 0, time.UTC)
	job.(*payoutBatchJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := payouts.PeriodEnding(now, 7)
	if !generator.gotPeriod.Start.Equal(want.Start) || !generator.gotPeriod.End.Equal(want.End) {
		t.Fatalf("unexpected period %+v, want %+v", generator.gotPeriod, want)
	}
}

func TestOutboxRetentionJobComputesCutoff(t *testing.T) {
	repo := &fakeOutboxRetention{deleted: 10}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     newTestLogger(),
		Repository: repo,
		Retention:  14,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-14 * 24 * time.Hour)
	if !repo.gotCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.gotCutoff)
	}
}

func TestNotificationCleanupJobDefaultsRetention(t *testing.T) {
	repo := &fakeNotificationCleanup{}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     newTestLogger(),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	job.(*notificationCleanupJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-time.Duration(notificationRetentionDays) * 24 * time.Hour)
	if !repo.gotCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.gotCutoff)
	}
}
