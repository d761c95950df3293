package promotion

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

// Allocation is the share of a discount assigned to one cart line, by index in the cart.
type Allocation struct {
	Index  int             `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

// Result describes a successfully evaluated promotion code.
type Result struct {
	CodeID uuid.UUID `json:"-"`
	Code   string    `json:"code"`
	Kind   Type      `json:"type"`
	// Eligible is the tax-excluded subtotal of the lines passing the filters.
	Eligible decimal.Decimal `json:"eligible"`
	// Amount is the tax-excluded discount on items. Zero for free shipping.
	Amount       decimal.Decimal `json:"amount"`
	Allocations  []Allocation    `json:"allocations,omitempty"`
	FreeShipping bool            `json:"freeShipping"`
}

// Evaluator checks a code against a priced cart.
type Evaluator struct {
	Now func() time.Time
}

// Validate runs the validity checks in order: expiry, usage limit, minimum amount.
// It returns the eligible subtotal on success.
func (e Evaluator) Validate(code Code, cart pricing.Cart) (decimal.Decimal, error) {
	if code.Conditions.Until != nil && e.now().After(*code.Conditions.Until) {
		return decimal.Zero, ErrExpired
	}
	if code.Conditions.UsageLimit != nil && code.Used >= *code.Conditions.UsageLimit {
		return decimal.Zero, ErrExhausted
	}
	eligible := EligibleSubtotal(cart, code.Filters)
	if code.Conditions.MinAmount != nil && eligible.LessThan(*code.Conditions.MinAmount) {
		return decimal.Zero, ErrBelowMinimum
	}
	return eligible, nil
}

// Evaluate validates the code and computes the discount and its allocation across lines.
func (e Evaluator) Evaluate(code Code, cart pricing.Cart) (Result, error) {
	eligible, err := e.Validate(code, cart)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		CodeID:   code.ID,
		Code:     code.Code,
		Eligible: eligible,
		Amount:   decimal.Zero,
	}
	switch d := code.Discount.(type) {
	case Percentage:
		res.Kind = TypePercentage
		res.Amount = tax.Round2(eligible.Mul(d.Percent).Div(hundred))
	case Fixed:
		res.Kind = TypeFixed
		res.Amount = tax.Round2(decimal.Min(d.Amount, eligible))
	case FreeShipping:
		res.Kind = TypeFreeShipping
		res.FreeShipping = true
		return res, nil
	default:
		return Result{}, fmt.Errorf("%w: unsupported discount %T", ErrInvalidDefinition, code.Discount)
	}
	res.Allocations = prorate(cart, code.Filters, res.Amount, eligible)
	return res, nil
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Eligible reports whether a line can receive a discount under the given filters.
// Gift cards never can.
func Eligible(item pricing.PricedItem, f Filters) bool {
	return item.Kind != pricing.KindGiftCard && f.Matches(item)
}

// EligibleSubtotal sums the tax-excluded totals of eligible lines before any discount.
func EligibleSubtotal(cart pricing.Cart, f Filters) decimal.Decimal {
	total := decimal.Zero
	for _, it := range cart.Items {
		if Eligible(it, f) {
			total = total.Add(it.Original.TaxExcluded)
		}
	}
	return total
}

// prorate splits amount across eligible lines in proportion to their tax-excluded totals.
// Each share is rounded to cents; the rounding remainder goes to the largest line so the
// shares always sum to amount. No share exceeds its line total.
func prorate(cart pricing.Cart, f Filters, amount, eligible decimal.Decimal) []Allocation {
	if amount.IsZero() || !eligible.IsPositive() {
		return nil
	}
	var out []Allocation
	largest := -1
	allocated := decimal.Zero
	for i, it := range cart.Items {
		if !Eligible(it, f) {
			continue
		}
		base := it.Original.TaxExcluded
		share := tax.Round2(amount.Mul(base).Div(eligible))
		out = append(out, Allocation{Index: i, Amount: share})
		allocated = allocated.Add(share)
		if largest < 0 || base.GreaterThan(cart.Items[out[largest].Index].Original.TaxExcluded) {
			largest = len(out) - 1
		}
	}
	if len(out) == 0 {
		return nil
	}
	remainder := amount.Sub(allocated)
	if remainder.IsZero() {
		return out
	}
	out[largest].Amount = out[largest].Amount.Add(remainder)

	// Push any overflow past a line's total onto the lines with spare room, largest first.
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cart.Items[out[order[a]].Index].Original.TaxExcluded.GreaterThan(cart.Items[out[order[b]].Index].Original.TaxExcluded)
	})
	carry := decimal.Zero
	for _, k := range order {
		capacity := cart.Items[out[k].Index].Original.TaxExcluded
		if over := out[k].Amount.Sub(capacity); over.IsPositive() {
			out[k].Amount = capacity
			carry = carry.Add(over)
		}
	}
	for _, k := range order {
		if !carry.IsPositive() {
			break
		}
		capacity := cart.Items[out[k].Index].Original.TaxExcluded
		room := capacity.Sub(out[k].Amount)
		if !room.IsPositive() {
			continue
		}
		take := decimal.Min(room, carry)
		out[k].Amount = out[k].Amount.Add(take)
		carry = carry.Sub(take)
	}
	return out
}

// Apply reduces the allocated lines by their share and recomputes their tax-included amount
// and taxes. Original amounts are kept. The result is a new cart.
func Apply(res Result, cart pricing.Cart, engine tax.Engine) pricing.Cart {
	items := make([]pricing.PricedItem, len(cart.Items))
	copy(items, cart.Items)
	for _, alloc := range res.Allocations {
		if alloc.Index < 0 || alloc.Index >= len(items) {
			continue
		}
		it := items[alloc.Index]
		it.Discount = alloc.Amount
		it.Total = engine.Price(it.Original.TaxExcluded.Sub(alloc.Amount))
		it.Taxes = engine.Taxes(it.Total)
		items[alloc.Index] = it
	}
	return pricing.Summarize(items)
}
