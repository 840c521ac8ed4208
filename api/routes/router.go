package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	paymobwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/paymob"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs. Nil services make
// their handlers answer 500 instead of panicking.
type Dependencies struct {
	DB             db.Pinger
	Redis          *redis.Client
	Gatherer       prometheus.Gatherer
	Cart           cart.Service
	Orders         orders.Service
	Payments       payments.Service
	Webhook        webhookcontrollers.PaymobWebhookService
	WebhookGuard   *paymobwebhook.IdempotencyGuard
	WebhookSigning *paymobwebhook.Verifier
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		chimiddleware.StripSlashes,
		middleware.AuditMeta(),
	)

	var (
		redisPinger controllers.Pinger
		idemStore   redis.IdempotencyStore
	)
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idemStore = deps.Redis
	}
	var dbPinger controllers.Pinger
	if deps.DB != nil {
		dbPinger = deps.DB
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisPinger))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	webhook := webhookcontrollers.PaymobWebhook(deps.Webhook, deps.WebhookSigning, webhookGuard(deps.WebhookGuard), logg)
	r.Post("/api/v1/webhook", webhook)
	r.Post("/api/v1/webhooks/paymob", webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Put("/", cartcontrollers.CartReplace(deps.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})
		r.Get("/order-status/{orderId}", ordercontrollers.PaymentStatus(deps.Orders, logg))
		r.Post("/checkout/{orderId}", controllers.PaymentCheckout(deps.Payments, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderDetail(deps.Orders, logg))
				r.Put("/", controllers.AdminOrderUpdate(deps.Orders, logg))
				r.Delete("/", controllers.AdminOrderCancel(deps.Orders, logg))
			})
			r.Get("/payments/stats", controllers.AdminPaymentStats(deps.Payments, logg))
		})
	})

	return r
}

// webhookGuard keeps a nil guard from turning into a non-nil interface.
func webhookGuard(guard *paymobwebhook.IdempotencyGuard) webhookcontrollers.PaymobWebhookGuard {
	if guard == nil {
		return nil
	}
	return guard
}
