package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	paymobwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/paymob"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/paymob"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	serviceKind             = "api"
	webhookIdempotencyScope = "paymob-webhook"
)

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	// PORT wins so the binary runs unchanged on platforms that assign one.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": ":" + port, "instance": instance})

	if err := run(ctx, cfg, logg, ":"+port); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, addr string) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := wire(ctx, cfg, logg, dbClient, redisClient, metrics.NewStorefrontMetrics(registry))
	if err != nil {
		return err
	}
	deps.Gatherer = registry

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// wire builds every service the router needs on top of the shared
// connections.
func wire(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, storefrontMetrics *metrics.StorefrontMetrics) (routes.Dependencies, error) {
	if !cfg.Paymob.Enabled() {
		logg.Warn(ctx, "paymob integration id or iframe id missing; checkout will fail at the gateway")
	}
	gateway, err := paymob.NewFromConfig(cfg.Paymob, paymob.WithObserver(storefrontMetrics.ObserveGatewayCall))
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("paymob client: %w", err)
	}

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	auditLog := audit.NewService(audit.NewRepository(conn), logg)

	cartService, err := cart.NewService(cartRepo, catalogRepo, dbClient)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("cart service: %w", err)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		Carts:             cartRepo,
		Catalog:           catalogRepo,
		TransactionRunner: dbClient,
		Outbox:            events,
		Audit:             auditLog,
		Metrics:           storefrontMetrics,
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:    paymentsRepo,
		Orders:  ordersRepo,
		Gateway: gateway,
		Config:  cfg.Paymob,
		Audit:   auditLog,
		Metrics: storefrontMetrics,
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("payments service: %w", err)
	}

	webhookService, err := paymobwebhook.NewService(paymobwebhook.ServiceParams{
		Payments:          paymentsRepo,
		Orders:            ordersRepo,
		TransactionRunner: dbClient,
		Outbox:            events,
		Audit:             auditLog,
		Metrics:           storefrontMetrics,
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("webhook service: %w", err)
	}

	guard, err := paymobwebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("webhook guard: %w", err)
	}

	signing := paymobwebhook.NewVerifier(cfg.Paymob.HMACSecret)
	if !signing.Enabled() {
		logg.Warn(ctx, "paymob hmac secret not configured; webhook signatures will not be verified")
	}

	return routes.Dependencies{
		DB:             dbClient,
		Redis:          redisClient,
		Cart:           cartService,
		Orders:         ordersService,
		Payments:       paymentsService,
		Webhook:        webhookService,
		WebhookGuard:   guard,
		WebhookSigning: signing,
	}, nil
}
