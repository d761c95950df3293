package shipping

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/tax"
)

// Price is the shipping price record. Originals keep the carrier price when a promotion waives it.
type Price struct {
	TaxExcluded         decimal.Decimal `json:"taxExcluded"`
	TaxIncluded         decimal.Decimal `json:"taxIncluded"`
	OriginalTaxExcluded decimal.Decimal `json:"originalTaxExcluded"`
	OriginalTaxIncluded decimal.Decimal `json:"originalTaxIncluded"`
}

// Charged returns the amount actually billed.
func (p Price) Charged() tax.Price {
	return tax.Price{TaxExcluded: p.TaxExcluded, TaxIncluded: p.TaxIncluded}
}

// Shipping is the resolved shipping line of an order.
type Shipping struct {
	Method Method
	Price  Price
	Taxes  tax.Taxes
}

type shippingJSON struct {
	Method MethodInput `json:"method"`
	Price  Price       `json:"price"`
	Taxes  tax.Taxes   `json:"taxes"`
}

// MarshalJSON flattens the method into its input form.
func (s Shipping) MarshalJSON() ([]byte, error) {
	taxes := s.Taxes
	if taxes == nil {
		taxes = tax.Taxes{}
	}
	return json.Marshal(shippingJSON{Method: Input(s.Method), Price: s.Price, Taxes: taxes})
}

// UnmarshalJSON rebuilds the method variant.
func (s *Shipping) UnmarshalJSON(data []byte) error {
	var raw shippingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	method, err := ParseMethod(raw.Method)
	if err != nil {
		return err
	}
	*s = Shipping{Method: method, Price: raw.Price, Taxes: raw.Taxes}
	return nil
}

// Resolver prices shipping from the carrier rate table.
type Resolver struct {
	Rates RateTable
	Tax   tax.Engine
}

// Resolve prices a parcel of weight grams for method. freeShipping zeroes the billed
// amounts and keeps the carrier price as the original.
func (r Resolver) Resolve(weight int, method Method, freeShipping bool) (Shipping, error) {
	if weight < 0 {
		return Shipping{}, fmt.Errorf("%w: negative weight", ErrInvalidMethod)
	}
	switch m := method.(type) {
	case PickupAtWorkshop:
		return Shipping{
			Method: m,
			Price: Price{
				TaxExcluded:         decimal.Zero,
				TaxIncluded:         decimal.Zero,
				OriginalTaxExcluded: decimal.Zero,
				OriginalTaxIncluded: decimal.Zero,
			},
			Taxes: tax.Taxes{},
		}, nil
	case Colissimo, MondialRelay:
		base, err := r.Rates.Lookup(m.Kind(), weight)
		if err != nil {
			return Shipping{}, err
		}
		price := r.Tax.Price(base)
		out := Shipping{
			Method: m,
			Price: Price{
				TaxExcluded:         price.TaxExcluded,
				TaxIncluded:         price.TaxIncluded,
				OriginalTaxExcluded: price.TaxExcluded,
				OriginalTaxIncluded: price.TaxIncluded,
			},
			Taxes: r.Tax.Taxes(price),
		}
		if freeShipping {
			out.Price.TaxExcluded = decimal.Zero
			out.Price.TaxIncluded = decimal.Zero
			out.Taxes = tax.Taxes{}
		}
		return out, nil
	default:
		return Shipping{}, fmt.Errorf("%w: unsupported method %T", ErrInvalidMethod, method)
	}
}
