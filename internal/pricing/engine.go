package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/tax"
)

var (
	// ErrInvalidItem is returned when a line carries a non-positive quantity or a negative price or weight.
	ErrInvalidItem = errors.New("pricing: invalid cart item")
	// ErrEmptyCart is returned when pricing a cart without items.
	ErrEmptyCart = errors.New("pricing: cart is empty")
)

// PricedItem is a cart line with its computed amounts.
type PricedItem struct {
	Kind           Kind            `json:"type"`
	Line           Line            `json:"line"`
	Customizations []Customization `json:"customizations,omitempty"`
	PerUnit        tax.Price       `json:"perUnit"`
	Total          tax.Price       `json:"total"`
	// Original is the line total before any promotion; it equals Total until a discount is allocated.
	Original    tax.Price       `json:"original"`
	Discount    decimal.Decimal `json:"discount"`
	TotalWeight int             `json:"totalWeight"`
	Taxes       tax.Taxes       `json:"taxes"`
}

// Cart aggregates priced lines.
type Cart struct {
	Items    []PricedItem `json:"items"`
	Subtotal tax.Price    `json:"subtotal"`
	Taxes    tax.Taxes    `json:"taxes"`
	Weight   int          `json:"weight"`
}

// Pricer computes per-line totals. It holds no state besides the tax engine.
type Pricer struct {
	Tax tax.Engine
}

// Price computes the totals of a single item.
func (p Pricer) Price(item CartItem) (PricedItem, error) {
	if item == nil {
		return PricedItem{}, fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	line := item.line()
	if line.Quantity <= 0 {
		return PricedItem{}, fmt.Errorf("%w: quantity %d", ErrInvalidItem, line.Quantity)
	}
	if line.UnitTaxExcluded.IsNegative() || line.UnitWeight < 0 {
		return PricedItem{}, fmt.Errorf("%w: negative unit price or weight", ErrInvalidItem)
	}
	qty := decimal.NewFromInt(int64(line.Quantity))

	switch it := item.(type) {
	case GiftCardItem:
		unit := tax.Round2(line.UnitTaxExcluded)
		total := tax.Round2(unit.Mul(qty))
		out := PricedItem{
			Kind:     KindGiftCard,
			Line:     line,
			PerUnit:  tax.Price{TaxExcluded: unit, TaxIncluded: unit},
			Total:    tax.Price{TaxExcluded: total, TaxIncluded: total},
			Discount: decimal.Zero,
			Taxes:    tax.Taxes{},
		}
		out.Original = out.Total
		return out, nil
	case CustomizedItem:
		unit := line.UnitTaxExcluded
		for _, c := range it.Customizations {
			if c.Surcharge.IsNegative() {
				return PricedItem{}, fmt.Errorf("%w: negative surcharge on %s", ErrInvalidItem, c.OptionID)
			}
			unit = unit.Add(c.Surcharge)
		}
		out := p.taxed(KindCustomized, line, unit, qty)
		out.Customizations = it.Customizations
		return out, nil
	case InStockItem:
		return p.taxed(KindInStock, line, line.UnitTaxExcluded, qty), nil
	default:
		return PricedItem{}, fmt.Errorf("%w: unsupported item type %T", ErrInvalidItem, item)
	}
}

func (p Pricer) taxed(kind Kind, line Line, unit, qty decimal.Decimal) PricedItem {
	perUnit := p.Tax.Price(unit)
	total := p.Tax.Price(perUnit.TaxExcluded.Mul(qty))
	return PricedItem{
		Kind:        kind,
		Line:        line,
		PerUnit:     perUnit,
		Total:       total,
		Original:    total,
		Discount:    decimal.Zero,
		TotalWeight: line.UnitWeight * line.Quantity,
		Taxes:       p.Tax.Taxes(total),
	}
}

// PriceCart prices every item and aggregates the cart subtotal.
func (p Pricer) PriceCart(items []CartItem) (Cart, error) {
	if len(items) == 0 {
		return Cart{}, ErrEmptyCart
	}
	priced := make([]PricedItem, 0, len(items))
	for i, item := range items {
		pi, err := p.Price(item)
		if err != nil {
			return Cart{}, fmt.Errorf("item %d: %w", i, err)
		}
		priced = append(priced, pi)
	}
	return Summarize(priced), nil
}

// Summarize recomputes the cart aggregates from already priced lines.
func Summarize(items []PricedItem) Cart {
	cart := Cart{Items: items, Taxes: tax.Taxes{}}
	for _, it := range items {
		cart.Subtotal = cart.Subtotal.Add(it.Total)
		cart.Taxes = cart.Taxes.Merge(it.Taxes)
		cart.Weight += it.TotalWeight
	}
	return cart
}
