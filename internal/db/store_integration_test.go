package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/checkout"
	"github.com/noah-isme/backend-atelier/internal/db"
	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/shipping"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupStore(t *testing.T) *db.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("atelier"),
		postgres.WithUsername("atelier"),
		postgres.WithPassword("atelier"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(url))
	require.NoError(t, db.Migrate(url))

	pool, err := db.NewPool(ctx, url, "atelier-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return db.NewStore(pool)
}

func TestStoreRoundTrips(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	t.Run("articles", func(t *testing.T) {
		art := catalog.Article{
			ID: "curtain", Name: "Curtain", Kind: pricing.KindCustomized, UnitPrice: dec("45.00"), UnitWeight: 800, Enabled: true,
			Options: map[string]catalog.Option{
				"fabric": {ID: "fabric", Kind: pricing.CustomizationFabric, Choices: map[string]decimal.Decimal{"linen": dec("8.00")}},
			},
		}
		require.NoError(t, store.UpsertArticle(ctx, art))
		got, err := store.GetArticle(ctx, "curtain")
		require.NoError(t, err)
		require.Equal(t, "45", got.UnitPrice.String())
		require.Equal(t, "8", got.Options["fabric"].Choices["linen"].String())

		_, err = store.GetArticle(ctx, "missing")
		require.ErrorIs(t, err, catalog.ErrArticleNotFound)
	})

	t.Run("promotion codes", func(t *testing.T) {
		limit := 3
		minAmount := dec("20")
		code, err := promotion.Parse(promotion.Definition{Code: "SPRING", Type: promotion.TypePercentage, Discount: dec("12.5"), UsageLimit: &limit, MinAmount: &minAmount})
		require.NoError(t, err)
		created, err := store.CreatePromotionCode(ctx, code)
		require.NoError(t, err)
		require.Equal(t, "SPRING", created.Code)
		require.Equal(t, 3, *created.Conditions.UsageLimit)

		_, err = store.CreatePromotionCode(ctx, code)
		require.ErrorIs(t, err, promotion.ErrDuplicate)

		got, err := store.GetPromotionCode(ctx, "SPRING")
		require.NoError(t, err)
		pct, ok := got.Discount.(promotion.Percentage)
		require.True(t, ok)
		require.Equal(t, "12.5", pct.Percent.String())

		require.NoError(t, store.DeletePromotionCode(ctx, "SPRING"))
		_, err = store.GetPromotionCode(ctx, "SPRING")
		require.ErrorIs(t, err, promotion.ErrNotFound)
	})

	t.Run("orders", func(t *testing.T) {
		engine := tax.MustEngine("0.2")
		cart, err := pricing.Pricer{Tax: engine}.PriceCart([]pricing.CartItem{
			pricing.InStockItem{Line: pricing.Line{ArticleID: "apron", Description: "Apron", Quantity: 1, UnitTaxExcluded: dec("25"), UnitWeight: 200}},
		})
		require.NoError(t, err)
		b, err := order.Aggregator{Tax: engine}.Aggregate(order.Input{Cart: cart, Shipping: shipping.Shipping{Method: shipping.PickupAtWorkshop{}}})
		require.NoError(t, err)
		now := time.Now().UTC().Truncate(time.Microsecond)
		o := order.New(b, order.WaitingBankTransfer{}, "client@example.com", now)
		o.PaymentReference = "bank-" + o.Reference

		err = store.Checkout().InTx(ctx, func(tx checkout.Tx) error {
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			_, err := events.Record(ctx, tx, events.TopicOrderCreated, o.ID, order.NewEventPayload(o))
			return err
		})
		require.NoError(t, err)

		got, err := store.GetOrderByPaymentReference(ctx, o.PaymentReference)
		require.NoError(t, err)
		require.Equal(t, o.ID, got.ID)
		require.Equal(t, order.StatusWaitingBankTransfer, got.State.Status())
		require.Equal(t, "30", got.Totals.TotalTaxIncluded.String())

		svc := &order.Service{Store: store.Orders(), Now: func() time.Time { return now }}
		paid, err := svc.MarkPaid(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, order.StatusPaid, paid.State.Status())

		reloaded, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, order.StatusPaid, reloaded.State.Status())

		evs, err := store.ListDomainEvents(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		require.Equal(t, events.TopicOrderPaid, evs[1].Topic)

		inv := order.NewInvoice(reloaded, now)
		require.NoError(t, store.UpsertInvoice(ctx, inv))
		require.NoError(t, store.UpsertInvoice(ctx, inv))
		stored, err := store.GetInvoice(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, inv.Number, stored.Number)
	})
}

func TestConcurrentRedemptionIsSerialised(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	limit := 1
	code, err := promotion.Parse(promotion.Definition{Code: "ONCE", Type: promotion.TypeFixed, Discount: dec("5"), UsageLimit: &limit})
	require.NoError(t, err)
	_, err = store.CreatePromotionCode(ctx, code)
	require.NoError(t, err)

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		redeemed  int
		exhausted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Checkout().InTx(ctx, func(tx checkout.Tx) error {
				locked, err := tx.GetPromotionCodeForUpdate(ctx, "ONCE")
				if err != nil {
					return err
				}
				if locked.Used >= *locked.Conditions.UsageLimit {
					return promotion.ErrExhausted
				}
				return tx.IncrementPromotionUsage(ctx, locked.ID)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				redeemed++
			case errors.Is(err, promotion.ErrExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, redeemed)
	require.Equal(t, n-1, exhausted)

	got, err := store.GetPromotionCode(ctx, "ONCE")
	require.NoError(t, err)
	require.Equal(t, 1, got.Used)
	require.ErrorIs(t, store.IncrementPromotionUsage(ctx, got.ID), promotion.ErrExhausted)
}
