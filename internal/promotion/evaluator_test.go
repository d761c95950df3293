package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

var engine = tax.MustEngine("0.2")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func inStock(id, price string) pricing.CartItem {
	return pricing.InStockItem{Line: pricing.Line{ArticleID: id, Description: id, Quantity: 1, UnitTaxExcluded: dec(price), UnitWeight: 100}}
}

func customized(id, price string) pricing.CartItem {
	return pricing.CustomizedItem{Line: pricing.Line{ArticleID: id, Description: id, Quantity: 1, UnitTaxExcluded: dec(price), UnitWeight: 100}}
}

func giftCard(amount string) pricing.CartItem {
	return pricing.GiftCardItem{Line: pricing.Line{Description: "gift card", Quantity: 1, UnitTaxExcluded: dec(amount)}}
}

func priceCart(t *testing.T, items ...pricing.CartItem) pricing.Cart {
	t.Helper()
	cart, err := pricing.Pricer{Tax: engine}.PriceCart(items)
	require.NoError(t, err)
	return cart
}

func mustParse(t *testing.T, def Definition) Code {
	t.Helper()
	code, err := Parse(def)
	require.NoError(t, err)
	return code
}

func TestPercentageIsComputedOnceOnTheSum(t *testing.T) {
	cart := priceCart(t, inStock("a", "100.00"))
	code := mustParse(t, Definition{Code: "TEN", Type: TypePercentage, Discount: dec("10")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "10", res.Amount.String())

	applied := Apply(res, cart, engine)
	line := applied.Items[0]
	require.Equal(t, "90", line.Total.TaxExcluded.String())
	require.Equal(t, "108", line.Total.TaxIncluded.String())
	require.Equal(t, "100", line.Original.TaxExcluded.String())
	require.Equal(t, "120", line.Original.TaxIncluded.String())
	require.Equal(t, "10", line.Discount.String())
}

func TestProrationSharesSumToDiscount(t *testing.T) {
	cart := priceCart(t, inStock("a", "33.33"), inStock("b", "33.33"), inStock("c", "33.34"))
	code := mustParse(t, Definition{Code: "TEN", Type: TypePercentage, Discount: dec("10")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "10", res.Amount.String())
	require.Len(t, res.Allocations, 3)

	sum := decimal.Zero
	for _, a := range res.Allocations {
		sum = sum.Add(a.Amount)
	}
	require.True(t, sum.Equal(dec("10.00")), "sum %s", sum)
	require.Equal(t, 2, res.Allocations[2].Index)
	require.Equal(t, "3.34", res.Allocations[2].Amount.String())

	applied := Apply(res, cart, engine)
	require.True(t, applied.Subtotal.TaxExcluded.Equal(dec("90.00")))
	require.True(t, applied.Subtotal.TaxIncluded.Equal(applied.Subtotal.TaxExcluded.Add(applied.Taxes.Total())))
}

func TestFixedIsCappedAtEligibleSubtotal(t *testing.T) {
	cart := priceCart(t, inStock("a", "30.00"))
	code := mustParse(t, Definition{Code: "FIFTY", Type: TypeFixed, Discount: dec("50")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "30", res.Amount.String())

	applied := Apply(res, cart, engine)
	require.True(t, applied.Items[0].Total.IsZero())
	require.True(t, applied.Subtotal.IsZero())
}

func TestFixedDiscountOnWorkedExample(t *testing.T) {
	cart := priceCart(t, inStock("curtain", "83.33"))
	require.Equal(t, "100", cart.Items[0].Total.TaxIncluded.String())
	code := mustParse(t, Definition{Code: "FIXED10", Type: TypeFixed, Discount: dec("10")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	applied := Apply(res, cart, engine)
	require.Equal(t, "73.33", applied.Items[0].Total.TaxExcluded.String())
	require.Equal(t, "88", applied.Items[0].Total.TaxIncluded.String())
	require.Equal(t, "14.67", applied.Taxes.Total().String())
}

func TestValidityOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	ev := Evaluator{Now: func() time.Time { return now }}
	cart := priceCart(t, inStock("a", "20.00"))

	code := mustParse(t, Definition{
		Code: "ALL", Type: TypeFixed, Discount: dec("5"),
		Until: &past, UsageLimit: ptr(1), MinAmount: ptr(dec("50")),
	})
	code.Used = 1

	_, err := ev.Evaluate(code, cart)
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, "EXPIRED", Kind(err))

	code.Conditions.Until = nil
	_, err = ev.Evaluate(code, cart)
	require.ErrorIs(t, err, ErrExhausted)

	code.Conditions.UsageLimit = nil
	_, err = ev.Evaluate(code, cart)
	require.ErrorIs(t, err, ErrBelowMinimum)
	require.Equal(t, "BELOW_MINIMUM", Kind(err))

	code.Conditions.MinAmount = ptr(dec("20.00"))
	res, err := ev.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "5", res.Amount.String())
}

func TestUntilIsInclusive(t *testing.T) {
	until := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := Evaluator{Now: func() time.Time { return until }}
	code := mustParse(t, Definition{Code: "EDGE", Type: TypeFreeShipping, Until: &until})
	_, err := ev.Evaluate(code, priceCart(t, inStock("a", "1")))
	require.NoError(t, err)
}

func TestFiltersCombineWithAnd(t *testing.T) {
	cart := priceCart(t,
		customized("a1", "50.00"),
		customized("a2", "30.00"),
		inStock("a1", "20.00"),
	)
	code := mustParse(t, Definition{
		Code: "AND", Type: TypePercentage, Discount: dec("10"),
		Category: ptr(pricing.KindCustomized), ArticleID: ptr("a1"),
	})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "50", res.Eligible.String())
	require.Equal(t, "5", res.Amount.String())
	require.Len(t, res.Allocations, 1)
	require.Equal(t, 0, res.Allocations[0].Index)
	require.Equal(t, "5", res.Allocations[0].Amount.String())
}

func TestMinimumAppliesToFilteredSubtotal(t *testing.T) {
	cart := priceCart(t, customized("a", "40.00"), inStock("b", "100.00"))
	code := mustParse(t, Definition{
		Code: "MIN", Type: TypeFixed, Discount: dec("5"),
		MinAmount: ptr(dec("50")), Category: ptr(pricing.KindCustomized),
	})
	_, err := Evaluator{}.Evaluate(code, cart)
	require.ErrorIs(t, err, ErrBelowMinimum)
}

func TestGiftCardsAreNeverDiscounted(t *testing.T) {
	cart := priceCart(t, giftCard("50.00"), inStock("a", "50.00"))
	code := mustParse(t, Definition{Code: "TEN", Type: TypePercentage, Discount: dec("10")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.Equal(t, "5", res.Amount.String())

	applied := Apply(res, cart, engine)
	require.Equal(t, "50", applied.Items[0].Total.TaxExcluded.String())
	require.True(t, applied.Items[0].Discount.IsZero())
}

func TestFreeShippingHasNoItemDiscount(t *testing.T) {
	cart := priceCart(t, inStock("a", "10.00"))
	code := mustParse(t, Definition{Code: "SHIP", Type: TypeFreeShipping})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.True(t, res.FreeShipping)
	require.True(t, res.Amount.IsZero())
	require.Empty(t, res.Allocations)
	applied := Apply(res, cart, engine)
	require.True(t, applied.Subtotal.TaxIncluded.Equal(cart.Subtotal.TaxIncluded))
}

func TestNoMatchingLinesYieldsZeroDiscount(t *testing.T) {
	cart := priceCart(t, inStock("a", "10.00"))
	code := mustParse(t, Definition{Code: "OTHER", Type: TypeFixed, Discount: dec("5"), ArticleID: ptr("b")})

	res, err := Evaluator{}.Evaluate(code, cart)
	require.NoError(t, err)
	require.True(t, res.Amount.IsZero())
	require.Empty(t, res.Allocations)
}
