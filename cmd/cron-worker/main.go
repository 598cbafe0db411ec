package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/cron"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/internal/notifications"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payouts"
	"github.com/kartmitra/kartmitra-backend/internal/reservations"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/metrics"
	"github.com/kartmitra/kartmitra-backend/pkg/migrate"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/redis"
)

const lockKeyFormat = "km:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build job registry", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "cron-worker",
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry wires the sweep jobs. Expiry and auto-cancel run every
// cycle; payout generation and the cleanup sweeps run daily.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), dbClient, outboxSvc)
	if err != nil {
		return nil, err
	}
	reservationSvc, err := reservations.NewService(
		reservations.NewRepository(conn),
		inventory.NewRepository(conn),
		inventorySvc,
		dbClient,
		outboxSvc,
	)
	if err != nil {
		return nil, err
	}
	cartSvc, err := cart.NewService(cart.NewRepository(conn), dbClient, cfg.Orders)
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(conn), cartSvc, reservationSvc, dbClient, outboxSvc, cfg.Orders)
	if err != nil {
		return nil, err
	}
	reservationSvc.BindOrderCancels(ordersSvc.CancelExpiredTx)
	payoutsSvc, err := payouts.NewService(payouts.NewRepository(conn), dbClient, outboxSvc, cfg.Payouts)
	if err != nil {
		return nil, err
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:       logg,
		Reservations: reservationSvc,
	})
	if err != nil {
		return nil, err
	}
	autoCancelJob, err := cron.NewOrderAutoCancelJob(cron.OrderAutoCancelJobParams{
		Logger: logg,
		Orders: ordersSvc,
	})
	if err != nil {
		return nil, err
	}
	payoutJob, err := cron.NewPayoutBatchJob(cron.PayoutBatchJobParams{
		Logger:     logg,
		Payouts:    payoutsSvc,
		PeriodDays: cfg.Payouts.PeriodDays,
	})
	if err != nil {
		return nil, err
	}
	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(conn),
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry(expiryJob, autoCancelJob)
	registry.RegisterEvery(payoutJob, 24*time.Hour)
	registry.RegisterEvery(outboxRetentionJob, 24*time.Hour)
	registry.RegisterEvery(notificationCleanupJob, 24*time.Hour)
	return registry, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
