package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-atelier/internal/audit"
	"github.com/noah-isme/backend-atelier/internal/auth"
	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/checkout"
	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/config"
	"github.com/noah-isme/backend-atelier/internal/db"
	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/health"
	"github.com/noah-isme/backend-atelier/internal/lock"
	"github.com/noah-isme/backend-atelier/internal/notify"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/payment"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/ratelimit"
	"github.com/noah-isme/backend-atelier/internal/resilience"
	"github.com/noah-isme/backend-atelier/internal/shipping"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

const metricsNamespace = "atelier"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	exporter := "otlp"
	if cfg.OTLPEndpoint == "" {
		exporter = "none"
	}
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Exporter:    exporter,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise tracing")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "atelier-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	store := db.NewStore(pool)

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for tasks")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() { _ = taskClient.Close() }()

	notifiers := []events.Notifier{events.TaskNotifier{Client: taskClient, Queue: cfg.WorkerQueue}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.Notifier{Client: taskClient, Queue: cfg.WorkerQueue})
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise kafka notifier")
		}
		defer kafka.Close()
		notifiers = append(notifiers, events.GuardedNotifier{
			Notifier: kafka,
			Policy: resilience.Policy{
				Breaker:     resilience.NewBreaker("kafka", 5, 0.5, 30*time.Second).WithLogger(logger),
				MaxAttempts: 2,
				BaseBackoff: 100 * time.Millisecond,
				Jitter:      0.2,
				Timeout:     2 * time.Second,
			},
		})
	}
	bus := &events.Bus{Store: store, Notifiers: notifiers, Logger: logger.With().Str("component", "events").Logger()}

	engine, err := tax.NewEngine(cfg.TaxRate)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise tax engine")
	}
	rates, err := shipping.LoadRateTable(cfg.ShippingRatesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load shipping rates")
	}

	catalogSvc := &catalog.Service{
		Store:       store,
		Cache:       catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		GiftCardMin: cfg.GiftCardMin,
		GiftCardMax: cfg.GiftCardMax,
		Logger:      logger.With().Str("component", "catalog").Logger(),
	}
	promotionSvc := &promotion.Service{
		Repo:      store,
		Evaluator: promotion.Evaluator{Now: time.Now},
		Logger:    logger.With().Str("component", "promotion").Logger(),
	}
	orderSvc := &order.Service{
		Store:  store.Orders(),
		Events: bus,
		Now:    time.Now,
		Logger: logger.With().Str("component", "order").Logger(),
	}

	var payments payment.Provider
	if cfg.StripeEnabled() {
		stripe := payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		stripe.SessionTTL = cfg.CheckoutSessionTTL
		payments = payment.NewGuarded(stripe, resilience.Policy{
			Breaker:     resilience.NewBreaker(payment.ProviderStripe, 5, 0.5, 30*time.Second).WithLogger(logger),
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     10 * time.Second,
		})
	} else {
		logger.Warn().Msg("stripe not configured, card checkout disabled")
	}

	checkoutSvc := &checkout.Service{
		Catalog:     catalogSvc,
		Pricer:      pricing.Pricer{Tax: engine},
		Promotions:  promotionSvc,
		Shipping:    shipping.Resolver{Rates: rates, Tax: engine},
		Aggregator:  order.Aggregator{Tax: engine},
		ExtraPrices: order.ExtraPrices{ReduceManufacturingTimes: cfg.ReduceManufacturingPrice},
		Store:       store.Checkout(),
		Events:      bus,
		Payments:    payments,
		Sessions:    checkout.SessionStore{R: redisClient, TTL: cfg.CheckoutSessionTTL + 15*time.Minute},
		Locker:      lock.Locker{R: redisClient},
		LockTTL:     cfg.CheckoutLockTTL,
		Currency:    cfg.CurrencyCode,
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
		Now:         time.Now,
		Logger:      logger.With().Str("component", "checkout").Logger(),
	}

	adminTokens, err := auth.NewAdminTokens(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise admin tokens")
	}
	previewLimiter, err := ratelimit.NewFixedRedis(redisClient, "ratelimit:preview")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise preview rate limiter")
	}

	router := newRouter(routerDeps{
		Logger:         logger,
		HTTPMetrics:    httpMetrics,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Health:         health.Handler{Probes: []health.Probe{health.Postgres(pool), health.Redis(redisClient)}},
		Checkout:       &checkout.Handler{Svc: checkoutSvc},
		Catalog:        &catalog.Handler{Svc: catalogSvc},
		Orders:         &order.Handler{Svc: orderSvc},
		Promotions:     &promotion.Handler{Svc: promotionSvc},
		Admin:          adminTokens,
		AuditLog:       audit.Handler{Store: store},
		Audit: audit.HTTPRecorder{
			Service: audit.Service{Store: store, Enabled: cfg.AuditEnabled, Now: time.Now},
			OnError: func(err error) { logger.Error().Err(err).Msg("audit record failed") },
		},
		Idempotency:    common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		PreviewLimiter: previewLimiter,
		RateRule:       ratelimit.Rule{Window: cfg.PreviewRateWindow, Max: cfg.PreviewRateLimit},
		WriteLimiter:   ratelimit.SlidingWindow{Client: redisClient, Prefix: "ratelimit:checkout:"},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

