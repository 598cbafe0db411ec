package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kartmitra/kartmitra-backend/api/routes"
	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/internal/notifications"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	"github.com/kartmitra/kartmitra-backend/internal/payouts"
	"github.com/kartmitra/kartmitra-backend/internal/reservations"
	"github.com/kartmitra/kartmitra-backend/internal/returns"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/metrics"
	"github.com/kartmitra/kartmitra-backend/pkg/migrate"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/razorpay"
	"github.com/kartmitra/kartmitra-backend/pkg/redis"
	"github.com/kartmitra/kartmitra-backend/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gateway, err := razorpay.NewGateway(context.Background(), cfg.App, cfg.Razorpay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	uploader, err := storage.NewUploader(context.Background(), cfg.App, cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	svcs, err := buildServices(cfg, logg, dbClient, gateway, uploader)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, svcs),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

// buildServices wires the domain graph. The order/payment/return cycle is
// broken with late binding: orders call into payments for refunds, payments
// call back into returns on refund settlement.
func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	gateway razorpay.Gateway,
	uploader storage.Uploader,
) (routes.Services, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), dbClient, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	reservationSvc, err := reservations.NewService(
		reservations.NewRepository(conn),
		inventory.NewRepository(conn),
		inventorySvc,
		dbClient,
		outboxSvc,
	)
	if err != nil {
		return routes.Services{}, err
	}

	cartSvc, err := cart.NewService(cart.NewRepository(conn), dbClient, cfg.Orders)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(conn), cartSvc, reservationSvc, dbClient, outboxSvc, cfg.Orders)
	if err != nil {
		return routes.Services{}, err
	}

	paymentsSvc, err := payments.NewService(payments.NewRepository(conn), ordersSvc, gateway, dbClient, outboxSvc, logg)
	if err != nil {
		return routes.Services{}, err
	}

	returnsSvc, err := returns.NewService(
		returns.NewRepository(conn),
		inventorySvc,
		ordersSvc,
		paymentsSvc,
		dbClient,
		outboxSvc,
	)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc.BindRefunds(paymentsSvc.RefundForOrder)
	ordersSvc.BindCapture(paymentsSvc.CaptureForOrder)
	paymentsSvc.BindReturnCompletion(returnsSvc.Complete)
	reservationSvc.BindOrderCancels(ordersSvc.CancelExpiredTx)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return routes.Services{}, err
	}

	payoutsSvc, err := payouts.NewService(payouts.NewRepository(conn), dbClient, outboxSvc, cfg.Payouts)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Cart:          cartSvc,
		Orders:        ordersSvc,
		Inventory:     inventorySvc,
		Payments:      paymentsSvc,
		Returns:       returnsSvc,
		Payouts:       payoutsSvc,
		Notifications: notificationsSvc,
		Uploader:      uploader,
		Metrics:       metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
	}, nil
}
