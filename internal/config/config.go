package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	LogFormat          string
	LogLevel           string

	TaxRate                  decimal.Decimal
	CurrencyCode             string
	ShippingRatesFile        string
	ReduceManufacturingPrice decimal.Decimal
	GiftCardMin              decimal.Decimal
	GiftCardMax              decimal.Decimal

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	CheckoutSessionTTL  time.Duration
	CheckoutLockTTL     time.Duration

	AdminJWTSecret string
	AdminJWTIssuer string

	KafkaBrokers []string
	KafkaTopic   string
	WorkerQueue  string
	WorkerConc   int

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	PreviewRateLimit  int
	PreviewRateWindow time.Duration
	IdempotencyTTL    time.Duration
	CatalogCacheTTL   time.Duration
	AuditEnabled      bool

	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),

		CurrencyCode:      strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "EUR")),
		ShippingRatesFile: strings.TrimSpace(k.String("SHIPPING_RATES_FILE")),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  valueOrDefault(k.String("CHECKOUT_SUCCESS_URL"), "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:   valueOrDefault(k.String("CHECKOUT_CANCEL_URL"), "http://localhost:3000/checkout/cancel"),
		CheckoutSessionTTL:  parseDuration(k.String("CHECKOUT_SESSION_TTL"), "1h"),
		CheckoutLockTTL:     parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),

		AdminJWTSecret: k.String("ADMIN_JWT_SECRET"),
		AdminJWTIssuer: valueOrDefault(k.String("ADMIN_JWT_ISSUER"), "atelier-admin"),

		KafkaBrokers: splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "atelier.domain-events"),
		WorkerQueue:  valueOrDefault(k.String("WORKER_QUEUE"), "default"),
		WorkerConc:   parseInt(k.String("WORKER_CONCURRENCY"), 5),

		WebhookURL:     strings.TrimSpace(k.String("WEBHOOK_URL")),
		WebhookSecret:  k.String("WEBHOOK_SECRET"),
		WebhookTimeout: parseDuration(k.String("WEBHOOK_TIMEOUT"), "5s"),

		PreviewRateLimit:  parseInt(k.String("PREVIEW_RATE_LIMIT"), 20),
		PreviewRateWindow: parseDuration(k.String("PREVIEW_RATE_WINDOW"), "1m"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		AuditEnabled:      parseBool(k.String("AUDIT_ENABLED"), true),

		OTLPEndpoint: strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:  valueOrDefault(k.String("OTEL_SERVICE_NAME"), "atelier-api"),
	}

	var err error
	if cfg.TaxRate, err = parseDecimal("TAX_RATE", k.String("TAX_RATE"), "0"); err != nil {
		return nil, err
	}
	if cfg.TaxRate.IsNegative() {
		return nil, errors.New("TAX_RATE must not be negative")
	}
	if cfg.ReduceManufacturingPrice, err = parseDecimal("EXTRA_REDUCE_MANUFACTURING_TIMES_PRICE", k.String("EXTRA_REDUCE_MANUFACTURING_TIMES_PRICE"), "0"); err != nil {
		return nil, err
	}
	if cfg.GiftCardMin, err = parseDecimal("GIFT_CARD_MIN", k.String("GIFT_CARD_MIN"), "10"); err != nil {
		return nil, err
	}
	if cfg.GiftCardMax, err = parseDecimal("GIFT_CARD_MAX", k.String("GIFT_CARD_MAX"), "500"); err != nil {
		return nil, err
	}
	if cfg.GiftCardMin.GreaterThan(cfg.GiftCardMax) {
		return nil, errors.New("GIFT_CARD_MIN must not exceed GIFT_CARD_MAX")
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AdminJWTSecret == "" {
		return nil, errors.New("ADMIN_JWT_SECRET is required")
	}
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// StripeEnabled reports whether card checkout can be offered.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDecimal(key, value, fallback string) (decimal.Decimal, error) {
	raw := valueOrDefault(value, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, raw)
	}
	return d, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
