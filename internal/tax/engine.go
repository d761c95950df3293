package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegativeRate is returned when an engine is configured with a rate below zero.
var ErrNegativeRate = errors.New("tax: rate must not be negative")

var one = decimal.NewFromInt(1)

// Round2 rounds an amount to cents, half away from zero.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Engine converts between tax-excluded and tax-included amounts using a single VAT rate.
// Every conversion is rounded to cents on its own; callers never defer rounding.
type Engine struct {
	rate decimal.Decimal
}

// NewEngine builds an engine for the provided rate (0.2 means 20%).
func NewEngine(rate decimal.Decimal) (Engine, error) {
	if rate.IsNegative() {
		return Engine{}, fmt.Errorf("%w: %s", ErrNegativeRate, rate)
	}
	return Engine{rate: rate}, nil
}

// MustEngine parses rate and panics on failure. Intended for tests and static wiring.
func MustEngine(rate string) Engine {
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		panic(err)
	}
	e, err := NewEngine(parsed)
	if err != nil {
		panic(err)
	}
	return e
}

// Rate returns the configured VAT rate.
func (e Engine) Rate() decimal.Decimal { return e.rate }

// Bracket returns the key under which taxes computed by this engine are grouped.
func (e Engine) Bracket() Bracket { return Bracket(e.rate.String()) }

// ApplyTaxes converts a tax-excluded amount into its tax-included counterpart.
func (e Engine) ApplyTaxes(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(one.Add(e.rate)))
}

// RemoveTaxes converts a tax-included amount back into a tax-excluded one. The
// result may differ from the original tax-excluded amount by one cent.
func (e Engine) RemoveTaxes(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Div(one.Add(e.rate)))
}

// TaxPortion returns the tax owed on a tax-excluded amount.
func (e Engine) TaxPortion(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(e.rate))
}

// Price rounds taxExcluded to cents and derives the matching tax-included amount.
func (e Engine) Price(taxExcluded decimal.Decimal) Price {
	excl := Round2(taxExcluded)
	return Price{TaxExcluded: excl, TaxIncluded: e.ApplyTaxes(excl)}
}

// Taxes returns the single-bracket breakdown for a price computed by this engine.
// The bracket amount is the difference between both sides so that
// TaxIncluded == TaxExcluded + Taxes.Total() holds exactly.
func (e Engine) Taxes(p Price) Taxes {
	return Taxes{e.Bracket(): p.Tax()}
}

// Price pairs the tax-excluded and tax-included sides of an amount.
type Price struct {
	TaxExcluded decimal.Decimal `json:"taxExcluded"`
	TaxIncluded decimal.Decimal `json:"taxIncluded"`
}

// Tax returns the tax part of the price.
func (p Price) Tax() decimal.Decimal {
	return p.TaxIncluded.Sub(p.TaxExcluded)
}

// Add sums two prices side by side.
func (p Price) Add(other Price) Price {
	return Price{
		TaxExcluded: p.TaxExcluded.Add(other.TaxExcluded),
		TaxIncluded: p.TaxIncluded.Add(other.TaxIncluded),
	}
}

// IsZero reports whether both sides are zero.
func (p Price) IsZero() bool {
	return p.TaxExcluded.IsZero() && p.TaxIncluded.IsZero()
}
