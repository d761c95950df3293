package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/shipping"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

var (
	// ErrInconsistentTotal is returned when a client-supplied total differs from the computed one by more than a cent.
	ErrInconsistentTotal = errors.New("client total does not match computed total")
	// ErrTotalsInvariant is returned when computed totals break taxIncluded == taxExcluded + Σtaxes.
	ErrTotalsInvariant = errors.New("order totals invariant violated")
	// ErrInvalidGiftCardAmount is returned for negative gift card amounts.
	ErrInvalidGiftCardAmount = errors.New("gift card amount must not be negative")
)

var tolerance = decimal.New(1, -2)

// Extra is a priced add-on.
type Extra struct {
	Price tax.Price `json:"price"`
	Taxes tax.Taxes `json:"taxes"`
}

// Extras holds the optional paid add-ons of an order.
type Extras struct {
	ReduceManufacturingTimes *Extra `json:"reduceManufacturingTimes,omitempty"`
}

// ExtraOptions is the customer's add-on selection.
type ExtraOptions struct {
	ReduceManufacturingTimes bool `json:"reduceManufacturingTimes"`
}

// ExtraPrices holds the configured tax-excluded price of each add-on.
type ExtraPrices struct {
	ReduceManufacturingTimes decimal.Decimal
}

// PriceExtras prices the selected add-ons.
func PriceExtras(opts ExtraOptions, prices ExtraPrices, engine tax.Engine) Extras {
	var out Extras
	if opts.ReduceManufacturingTimes {
		p := engine.Price(prices.ReduceManufacturingTimes)
		out.ReduceManufacturingTimes = &Extra{Price: p, Taxes: engine.Taxes(p)}
	}
	return out
}

func (e Extras) all() []*Extra {
	return []*Extra{e.ReduceManufacturingTimes}
}

// Total sums every selected add-on.
func (e Extras) Total() (tax.Price, tax.Taxes) {
	var total tax.Price
	taxes := tax.Taxes{}
	for _, x := range e.all() {
		if x == nil {
			continue
		}
		total = total.Add(x.Price)
		taxes = taxes.Merge(x.Taxes)
	}
	return total, taxes
}

// Totals is the order totals snapshot.
type Totals struct {
	// Subtotal is the sum of item lines after discount.
	Subtotal tax.Price `json:"subtotal"`
	// Discount is the promotion reduction on item lines.
	Discount         tax.Price       `json:"discount"`
	Shipping         tax.Price       `json:"shipping"`
	Extras           tax.Price       `json:"extras"`
	GiftCardAmount   decimal.Decimal `json:"giftCardAmount"`
	TotalTaxExcluded decimal.Decimal `json:"totalTaxExcluded"`
	TotalTaxIncluded decimal.Decimal `json:"totalTaxIncluded"`
	Taxes            tax.Taxes       `json:"taxes"`
}

// CheckInvariant verifies TotalTaxIncluded == TotalTaxExcluded + Σtaxes within a cent.
func (t Totals) CheckInvariant() error {
	want := t.TotalTaxExcluded.Add(t.Taxes.Total())
	if t.TotalTaxIncluded.Sub(want).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("%w: %s != %s + %s", ErrTotalsInvariant, t.TotalTaxIncluded, t.TotalTaxExcluded, t.Taxes.Total())
	}
	return nil
}

// Verify compares a client-supplied tax-included total with the computed one.
func (t Totals) Verify(client decimal.Decimal) error {
	if t.TotalTaxIncluded.Sub(client).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("%w: computed %s, client %s", ErrInconsistentTotal, t.TotalTaxIncluded.StringFixed(2), client.StringFixed(2))
	}
	return nil
}

// Input gathers the priced components of an order.
type Input struct {
	// Cart is the priced cart before any promotion.
	Cart           pricing.Cart
	Shipping       shipping.Shipping
	Extras         Extras
	Promotion      *promotion.Result
	GiftCardAmount decimal.Decimal
}

// Breakdown is the aggregated order: discounted lines plus totals.
type Breakdown struct {
	Items     []pricing.PricedItem
	Shipping  shipping.Shipping
	Extras    Extras
	Promotion *promotion.Result
	Totals    Totals
}

// Aggregator combines priced components into order totals.
type Aggregator struct {
	Tax tax.Engine
}

// Aggregate applies the promotion to item lines, then sums items, shipping and extras and
// subtracts the gift card amount. The gift card amount is capped at the tax-excluded total
// and removed from both sides so per-bracket taxes are unaffected.
//
// A gift card never pays VAT: when it exceeds the order, TotalTaxExcluded drops to zero,
// GiftCardAmount equals the tax-excluded gross and the customer still pays TotalTaxIncluded,
// which then equals the collected taxes.
func (a Aggregator) Aggregate(in Input) (Breakdown, error) {
	if in.GiftCardAmount.IsNegative() {
		return Breakdown{}, ErrInvalidGiftCardAmount
	}
	cart := in.Cart
	if in.Promotion != nil {
		cart = promotion.Apply(*in.Promotion, cart, a.Tax)
	}

	var totals Totals
	totals.Taxes = tax.Taxes{}
	for _, it := range cart.Items {
		totals.Subtotal = totals.Subtotal.Add(it.Total)
		totals.Discount = totals.Discount.Add(tax.Price{
			TaxExcluded: it.Original.TaxExcluded.Sub(it.Total.TaxExcluded),
			TaxIncluded: it.Original.TaxIncluded.Sub(it.Total.TaxIncluded),
		})
		totals.Taxes = totals.Taxes.Merge(it.Taxes)
	}
	totals.Shipping = in.Shipping.Price.Charged()
	totals.Taxes = totals.Taxes.Merge(in.Shipping.Taxes)
	extras, extrasTaxes := in.Extras.Total()
	totals.Extras = extras
	totals.Taxes = totals.Taxes.Merge(extrasTaxes)

	gross := totals.Subtotal.Add(totals.Shipping).Add(totals.Extras)
	giftCard := tax.Round2(decimal.Min(in.GiftCardAmount, gross.TaxExcluded))
	totals.GiftCardAmount = giftCard
	totals.TotalTaxExcluded = gross.TaxExcluded.Sub(giftCard)
	totals.TotalTaxIncluded = gross.TaxIncluded.Sub(giftCard)

	if err := totals.CheckInvariant(); err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Items:     cart.Items,
		Shipping:  in.Shipping,
		Extras:    in.Extras,
		Promotion: in.Promotion,
		Totals:    totals,
	}, nil
}
