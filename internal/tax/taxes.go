package tax

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Bracket identifies a VAT rate in per-bracket breakdowns, e.g. "0.2".
type Bracket string

// Taxes maps each bracket to the tax collected under it.
type Taxes map[Bracket]decimal.Decimal

// Merge returns a new breakdown holding the sum of t and other.
func (t Taxes) Merge(other Taxes) Taxes {
	out := make(Taxes, len(t)+len(other))
	for b, amount := range t {
		out[b] = amount
	}
	for b, amount := range other {
		out[b] = out[b].Add(amount)
	}
	return out
}

// Total sums every bracket.
func (t Taxes) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range t {
		total = total.Add(amount)
	}
	return total
}

// Brackets returns the bracket keys in a stable order.
func (t Taxes) Brackets() []Bracket {
	out := make([]Bracket, 0, len(t))
	for b := range t {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
