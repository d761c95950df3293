package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/shipping"
	"github.com/noah-isme/backend-atelier/internal/tax"
)

// PaymentLine is one line of the payment session or invoice.
type PaymentLine struct {
	Label string `json:"label"`
	// UnitPrice is tax included, rounded to cents.
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Quantity         int             `json:"quantity"`
	TotalTaxExcluded decimal.Decimal `json:"totalTaxExcluded"`
	TotalTaxIncluded decimal.Decimal `json:"totalTaxIncluded"`
}

// PaymentLines lists the billed lines of an order and the grand total to charge.
// Lines sum to the grand total unless a gift card amount was deducted.
func PaymentLines(o Order) ([]PaymentLine, decimal.Decimal) {
	lines := make([]PaymentLine, 0, len(o.Items)+2)
	for _, it := range o.Items {
		qty := it.Line.Quantity
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, PaymentLine{
			Label:            it.Line.Description,
			UnitPrice:        tax.Round2(it.Total.TaxIncluded.Div(decimal.NewFromInt(int64(qty)))),
			Quantity:         qty,
			TotalTaxExcluded: it.Total.TaxExcluded,
			TotalTaxIncluded: it.Total.TaxIncluded,
		})
	}
	if charged := o.Shipping.Price.Charged(); charged.TaxIncluded.IsPositive() {
		lines = append(lines, PaymentLine{
			Label:            shippingLabel(o.Shipping.Method),
			UnitPrice:        charged.TaxIncluded,
			Quantity:         1,
			TotalTaxExcluded: charged.TaxExcluded,
			TotalTaxIncluded: charged.TaxIncluded,
		})
	}
	if x := o.Extras.ReduceManufacturingTimes; x != nil {
		lines = append(lines, PaymentLine{
			Label:            "Reduced manufacturing times",
			UnitPrice:        x.Price.TaxIncluded,
			Quantity:         1,
			TotalTaxExcluded: x.Price.TaxExcluded,
			TotalTaxIncluded: x.Price.TaxIncluded,
		})
	}
	return lines, o.Totals.TotalTaxIncluded
}

func shippingLabel(m shipping.Method) string {
	switch m.(type) {
	case shipping.Colissimo:
		return "Shipping (Colissimo)"
	case shipping.MondialRelay:
		return "Shipping (Mondial Relay)"
	default:
		return "Shipping"
	}
}

// TaxLine is the per-bracket tax breakdown of an invoice.
type TaxLine struct {
	Bracket tax.Bracket     `json:"bracket"`
	Amount  decimal.Decimal `json:"amount"`
}

// Invoice is the data handed to the external invoice renderer.
type Invoice struct {
	Number    string        `json:"number"`
	OrderID   uuid.UUID     `json:"orderId"`
	Reference string        `json:"reference"`
	Email     string        `json:"email"`
	IssuedAt  time.Time     `json:"issuedAt"`
	Status    Status        `json:"status"`
	Lines     []PaymentLine `json:"lines"`
	Taxes     []TaxLine     `json:"taxes"`
	Totals    Totals        `json:"totals"`
}

// NewInvoice builds the invoice snapshot of o.
func NewInvoice(o Order, issuedAt time.Time) Invoice {
	lines, _ := PaymentLines(o)
	taxes := make([]TaxLine, 0, len(o.Totals.Taxes))
	for _, b := range o.Totals.Taxes.Brackets() {
		taxes = append(taxes, TaxLine{Bracket: b, Amount: o.Totals.Taxes[b]})
	}
	return Invoice{
		Number:    fmt.Sprintf("INV-%s", strings.TrimPrefix(o.Reference, "AT-")),
		OrderID:   o.ID,
		Reference: o.Reference,
		Email:     o.Email,
		IssuedAt:  issuedAt.UTC(),
		Status:    statusOf(o.State),
		Lines:     lines,
		Taxes:     taxes,
		Totals:    o.Totals,
	}
}
