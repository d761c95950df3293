package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/auth"
	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/config"
	"github.com/noah-isme/backend-atelier/internal/db"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
)

func main() {
	adminSubject := flag.String("admin-token", "", "print an admin bearer token for this subject and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()

	if *adminSubject != "" {
		tokens, err := auth.NewAdminTokens(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)
		if err != nil {
			logger.Fatal().Err(err).Msg("admin tokens")
		}
		signed, err := tokens.Sign(*adminSubject, 12*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("sign admin token")
		}
		logger.Info().Str("subject", *adminSubject).Str("token", signed).Msg("admin token issued")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "atelier-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	store := db.NewStore(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	cat := &catalog.Service{Cache: catalog.NewCache(rdb, cfg.CatalogCacheTTL), Logger: logger}

	if err := seedArticles(ctx, store, cat, articles(), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed articles")
	}

	for _, def := range promotionCodes() {
		code, err := promotion.Parse(def)
		if err != nil {
			logger.Fatal().Err(err).Str("code", def.Code).Msg("parse promotion code")
		}
		if _, err := store.CreatePromotionCode(ctx, code); err != nil {
			if errors.Is(err, promotion.ErrDuplicate) {
				logger.Info().Str("code", code.Code).Msg("promotion code already present")
				continue
			}
			logger.Fatal().Err(err).Str("code", code.Code).Msg("seed promotion code")
		}
	}
	logger.Info().Msg("seeding completed")
}

type articleWriter interface {
	UpsertArticle(ctx context.Context, a catalog.Article) error
}

// seedArticles upserts list and evicts the cached copies so the API serves the
// new rows. A cache failure is logged; cached entries still expire on their TTL.
func seedArticles(ctx context.Context, store articleWriter, cat *catalog.Service, list []catalog.Article, logger zerolog.Logger) error {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		if err := store.UpsertArticle(ctx, a); err != nil {
			return fmt.Errorf("article %s: %w", a.ID, err)
		}
		ids = append(ids, a.ID)
	}
	if err := cat.Invalidate(ctx, ids...); err != nil {
		logger.Warn().Err(err).Msg("evict cached articles")
	}
	logger.Info().Int("count", len(ids)).Msg("articles seeded")
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func articles() []catalog.Article {
	return []catalog.Article{
		{
			ID: "apron-linen", Name: "Linen apron", Kind: pricing.KindCustomized,
			UnitPrice: d("25.00"), UnitWeight: 200, Enabled: true,
			Options: map[string]catalog.Option{
				"fabric": {ID: "fabric", Kind: pricing.CustomizationFabric, Label: "Fabric", Choices: map[string]decimal.Decimal{
					"natural": decimal.Zero,
					"indigo":  d("3.00"),
					"liberty": d("6.50"),
				}},
				"embroidery": {ID: "embroidery", Kind: pricing.CustomizationText, Label: "Embroidered name", Surcharge: d("5.00")},
				"pocket":     {ID: "pocket", Kind: pricing.CustomizationBoolean, Label: "Extra pocket", Surcharge: d("2.50")},
			},
		},
		{
			ID: "tote-bag", Name: "Tote bag", Kind: pricing.KindCustomized,
			UnitPrice: d("18.00"), UnitWeight: 150, Enabled: true,
			Options: map[string]catalog.Option{
				"fabric": {ID: "fabric", Kind: pricing.CustomizationFabric, Label: "Fabric", Choices: map[string]decimal.Decimal{
					"canvas": decimal.Zero,
					"waxed":  d("4.00"),
				}},
			},
		},
		{ID: "tea-towel", Name: "Tea towel", Kind: pricing.KindInStock, UnitPrice: d("9.90"), UnitWeight: 80, Enabled: true},
		{ID: "cushion-cover", Name: "Cushion cover", Kind: pricing.KindInStock, UnitPrice: d("22.00"), UnitWeight: 250, Enabled: true},
	}
}

func promotionCodes() []promotion.Definition {
	limit := 100
	minAmount := d("40")
	aprons := "apron-linen"
	customized := pricing.KindCustomized
	until := time.Now().AddDate(0, 3, 0).Truncate(24 * time.Hour)
	return []promotion.Definition{
		{Code: "WELCOME10", Type: promotion.TypePercentage, Discount: d("10")},
		{Code: "FIVEOFF", Type: promotion.TypeFixed, Discount: d("5"), MinAmount: &minAmount, UsageLimit: &limit},
		{Code: "SHIPFREE", Type: promotion.TypeFreeShipping, Until: &until},
		{Code: "APRON20", Type: promotion.TypePercentage, Discount: d("20"), ArticleID: &aprons},
		{Code: "BESPOKE15", Type: promotion.TypePercentage, Discount: d("15"), Category: &customized},
	}
}
