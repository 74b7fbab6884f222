package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mentorahq/mentora-backend/api/routes"
	"github.com/mentorahq/mentora-backend/internal/catalog"
	checkoutsvc "github.com/mentorahq/mentora-backend/internal/checkout"
	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/internal/gateway/squaregw"
	"github.com/mentorahq/mentora-backend/internal/gateway/stripegw"
	orderssvc "github.com/mentorahq/mentora-backend/internal/orders"
	refundssvc "github.com/mentorahq/mentora-backend/internal/refunds"
	webhooksvc "github.com/mentorahq/mentora-backend/internal/webhooks"
	"github.com/mentorahq/mentora-backend/pkg/config"
	"github.com/mentorahq/mentora-backend/pkg/db"
	"github.com/mentorahq/mentora-backend/pkg/logger"
	"github.com/mentorahq/mentora-backend/pkg/metrics"
	"github.com/mentorahq/mentora-backend/pkg/outbox"
	"github.com/mentorahq/mentora-backend/pkg/redis"
)

const webhookDedupTTL = 48 * time.Hour

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

	stripeClient, err := stripegw.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway client", err)
		os.Exit(1)
	}
	squareClient, err := squaregw.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square gateway client", err)
		os.Exit(1)
	}
	selector, err := gateway.NewSelector(stripeClient, squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway selector", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	orderRepo := orderssvc.NewRepository(dbClient.DB())
	refundRepo := refundssvc.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	webhookService, err := webhooksvc.NewService(webhooksvc.ServiceParams{
		OrderRepo:         orderRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	stripeGuard, err := webhooksvc.NewIdempotencyGuard(redisClient, webhookDedupTTL, "webhook:stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}
	squareGuard, err := webhooksvc.NewIdempotencyGuard(redisClient, webhookDedupTTL, "webhook:square")
	if err != nil {
		logg.Error(context.Background(), "failed to create square webhook guard", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Catalog:   catalogRepo,
		OrderRepo: orderRepo,
		Gateways:  selector,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orderssvc.NewService(orderssvc.ServiceParams{
		Repo:    orderRepo,
		Refunds: refundRepo,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	refundService, err := refundssvc.NewService(refundssvc.ServiceParams{
		OrderRepo:         orderRepo,
		RefundRepo:        refundRepo,
		Gateways:          selector,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
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
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			stripeClient,
			squareClient,
			webhookService,
			stripeGuard,
			squareGuard,
			checkoutService,
			orderService,
			refundService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
