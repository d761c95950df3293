package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/audit"
	"github.com/noah-isme/backend-atelier/internal/auth"
	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/checkout"
	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/health"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/ratelimit"
	"github.com/noah-isme/backend-atelier/internal/security"
)

const maxBodyBytes = 1 << 20

type routerDeps struct {
	Logger      zerolog.Logger
	HTTPMetrics *obs.HTTPMetrics
	CORSOrigins []string

	Health     health.Handler
	Checkout   *checkout.Handler
	Catalog    *catalog.Handler
	Orders     *order.Handler
	Promotions *promotion.Handler
	Admin      *auth.AdminTokens
	AuditLog   audit.Handler
	Audit      audit.HTTPRecorder

	Idempotency    common.Idem
	PreviewLimiter ratelimit.Limiter
	RateRule       ratelimit.Rule
	WriteLimiter   ratelimit.Limiter
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: d.Logger, Quiet: []string{"/health/live", "/health/ready", "/metrics"}}.Middleware)
	r.Use(security.Headers{EnableHSTS: true}.Middleware)
	r.Use(security.CORS(d.CORSOrigins))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	onLimiterError := func(err error) {
		d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
	}
	preview := ratelimit.Handler{Limiter: d.PreviewLimiter, Key: ratelimit.ByClientIP("preview"), Rule: d.RateRule, OnError: onLimiterError}
	writes := ratelimit.Handler{Limiter: d.WriteLimiter, Key: ratelimit.ByClientIP("checkout"), Rule: d.RateRule, OnError: onLimiterError}

	r.Route("/api/v1", func(v chi.Router) {
		// the webhook reads its own bounded body for signature verification
		v.Post("/webhooks/stripe", d.Checkout.StripeWebhook)

		v.Group(func(api chi.Router) {
			api.Use(security.BodyLimit(maxBodyBytes))

			api.Get("/articles/{id}", d.Catalog.GetArticle)
			api.Get("/orders/{id}", d.Orders.Get)
			api.Post("/checkout/quote", d.Checkout.Quote)
			api.With(preview.Middleware).Post("/promotion-codes/preview", d.Checkout.Preview)
			api.Group(func(g chi.Router) {
				g.Use(writes.Middleware)
				g.Use(d.Idempotency.Middleware)
				g.Post("/checkout/session", d.Checkout.CardSession)
				g.Post("/checkout/bank-transfer", d.Checkout.BankTransfer)
			})

			api.Route("/admin", func(admin chi.Router) {
				admin.Use(d.Admin.RequireAdmin)
				promo := audit.HTTPConfig{ResourceType: "promotion_code", ResourceIDParam: "code"}
				orders := audit.HTTPConfig{ResourceType: "order", ResourceIDParam: "id"}
				admin.With(d.Audit.Middleware(withAction(promo, "promotion_code.create"))).Post("/promotion-codes", d.Promotions.Create)
				admin.Get("/promotion-codes", d.Promotions.List)
				admin.Get("/promotion-codes/{code}", d.Promotions.Get)
				admin.With(d.Audit.Middleware(withAction(promo, "promotion_code.delete"))).Delete("/promotion-codes/{code}", d.Promotions.Delete)
				admin.With(d.Audit.Middleware(withAction(orders, "order.mark_paid"))).Post("/orders/{id}/mark-paid", d.Orders.MarkPaid)
				admin.With(d.Audit.Middleware(withAction(orders, "order.workflow"))).Patch("/orders/{id}/workflow", d.Orders.PatchWorkflow)
				admin.Get("/audit-log", d.AuditLog.List)
			})
		})
	})
	return r
}

func withAction(cfg audit.HTTPConfig, action string) audit.HTTPConfig {
	cfg.Action = action
	return cfg
}
