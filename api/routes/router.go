package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartmitra/kartmitra-backend/api/controllers"
	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/internal/cart"
	"github.com/kartmitra/kartmitra-backend/internal/inventory"
	"github.com/kartmitra/kartmitra-backend/internal/notifications"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	"github.com/kartmitra/kartmitra-backend/internal/payouts"
	"github.com/kartmitra/kartmitra-backend/internal/returns"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/metrics"
	"github.com/kartmitra/kartmitra-backend/pkg/redis"
	"github.com/kartmitra/kartmitra-backend/pkg/storage"
)

// Services groups the domain services the HTTP surface exposes.
type Services struct {
	Cart          cart.Service
	Orders        orders.Service
	Inventory     inventory.Service
	Payments      payments.Service
	Returns       returns.Service
	Payouts       payouts.Service
	Notifications notifications.Service
	Uploader      storage.Uploader
	Metrics       *metrics.OrderMetrics
}

// NewRouter assembles the full HTTP surface. Tokens are minted by the
// external auth service; every private group only verifies them.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	generalPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)
	writePolicy := middleware.NewRateLimitPolicy(
		"write",
		cfg.RateLimit.WriteWindow,
		cfg.RateLimit.WriteIPLimit,
		cfg.RateLimit.WriteUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Gateway callbacks authenticate via HMAC signature, not JWT.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", controllers.RazorpayWebhook(svcs.Payments, svcs.Metrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Use(middleware.RateLimit(generalPolicy, redisClient, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleBuyer, enums.UserRoleAdmin))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(svcs.Cart, logg))
				r.Post("/items", controllers.CartAddItem(svcs.Cart, logg))
				r.Patch("/items/{itemId}", controllers.CartUpdateItem(svcs.Cart, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(svcs.Cart, logg))
				r.Delete("/", controllers.CartClear(svcs.Cart, logg))
				r.Get("/summary", controllers.CartSummary(svcs.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(middleware.RateLimit(writePolicy, redisClient, logg)).
					Post("/", controllers.PlaceOrder(svcs.Orders, svcs.Metrics, logg))
				r.Get("/", controllers.ListOrders(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
				r.Get("/{orderId}/status-logs", controllers.OrderStatusLogs(svcs.Orders, logg))
				r.Get("/{orderId}/payments", controllers.ListOrderPayments(svcs.Payments, logg))
				r.With(middleware.RateLimit(writePolicy, redisClient, logg)).
					Post("/{orderId}/cancel", controllers.CancelOrder(svcs.Orders, svcs.Metrics, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.Use(middleware.RateLimit(writePolicy, redisClient, logg))
				r.Post("/intent", controllers.CreatePaymentIntent(svcs.Payments, logg))
				r.Post("/verify", controllers.VerifyPayment(svcs.Payments, svcs.Metrics, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.With(middleware.RateLimit(writePolicy, redisClient, logg)).
					Post("/", controllers.RequestReturn(svcs.Returns, logg))
				r.Get("/", controllers.ListReturns(svcs.Returns, logg))
				r.Get("/{returnId}", controllers.ReturnDetail(svcs.Returns, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svcs.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(svcs.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svcs.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svcs.Notifications, logg))
		})

		r.Route("/media", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleBuyer, enums.UserRoleVendor, enums.UserRoleAdmin))
			r.Post("/upload", controllers.MediaUpload(svcs.Uploader, cfg.Storage.MaxUploadMB, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleAdmin))
			r.Use(middleware.RequireVendorScope(logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.VendorListOrders(svcs.Orders, logg))
				r.Post("/{orderId}/accept", controllers.VendorAcceptOrder(svcs.Orders, logg))
				r.Post("/{orderId}/reject", controllers.VendorRejectOrder(svcs.Orders, logg))
				r.Post("/{orderId}/picked", controllers.VendorMarkPicked(svcs.Orders, logg))
				r.Post("/{orderId}/packed", controllers.VendorMarkPacked(svcs.Orders, logg))
			})

			r.Route("/inventory/{productId}", func(r chi.Router) {
				r.Post("/restock", controllers.VendorRestock(svcs.Inventory, logg))
				r.Post("/adjust", controllers.VendorAdjust(svcs.Inventory, logg))
				r.Get("/stock", controllers.VendorGetStock(svcs.Inventory, logg))
				r.Get("/movements", controllers.VendorListMovements(svcs.Inventory, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.Get("/", controllers.VendorListReturns(svcs.Returns, logg))
				r.Post("/{returnId}/approve", controllers.VendorApproveReturn(svcs.Returns, logg))
				r.Post("/{returnId}/reject", controllers.VendorRejectReturn(svcs.Returns, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.VendorListPayouts(svcs.Payouts, logg))
				r.Get("/earnings", controllers.VendorEarnings(svcs.Payouts, cfg.Payouts.PeriodDays, logg))
				r.Get("/{payoutId}", controllers.VendorPayoutDetail(svcs.Payouts, logg))
			})
		})

		r.Route("/partner", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleDeliveryPartner))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.PartnerListOrders(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
				r.Post("/{orderId}/deliver", controllers.PartnerMarkDelivered(svcs.Orders, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
				r.Get("/{orderId}/status-logs", controllers.OrderStatusLogs(svcs.Orders, logg))
				r.Post("/{orderId}/assign-partner", controllers.AdminAssignPartner(svcs.Orders, logg))
				r.Post("/{orderId}/reassign-partner", controllers.AdminReassignPartner(svcs.Orders, logg))
				r.Post("/{orderId}/cancel", controllers.CancelOrder(svcs.Orders, svcs.Metrics, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.Post("/{returnId}/complete", controllers.AdminCompleteReturn(svcs.Returns, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Post("/generate", controllers.AdminGeneratePayouts(svcs.Payouts, cfg.Payouts.PeriodDays, logg))
				r.Post("/{payoutId}/process", controllers.AdminProcessPayout(svcs.Payouts, logg))
				r.Post("/{payoutId}/fail", controllers.AdminFailPayout(svcs.Payouts, logg))
			})
		})
	})

	return r
}
