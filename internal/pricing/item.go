package pricing

import "github.com/shopspring/decimal"

// Kind discriminates cart item variants. It doubles as the promotion category filter.
type Kind string

const (
	KindCustomized Kind = "customized"
	KindInStock    Kind = "inStock"
	KindGiftCard   Kind = "giftCard"
)

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindCustomized, KindInStock, KindGiftCard:
		return true
	}
	return false
}

// Line holds the fields shared by every cart item variant.
type Line struct {
	ArticleID       string          `json:"articleId,omitempty"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitTaxExcluded decimal.Decimal `json:"unitTaxExcluded"`
	// UnitWeight is expressed in grams.
	UnitWeight int `json:"unitWeight"`
}

// CustomizationKind identifies what a customization selection changes on the article.
type CustomizationKind string

const (
	CustomizationFabric  CustomizationKind = "fabric"
	CustomizationText    CustomizationKind = "text"
	CustomizationBoolean CustomizationKind = "boolean"
)

// Customization is a resolved selection with its tax-excluded surcharge per unit.
type Customization struct {
	Kind      CustomizationKind `json:"type"`
	OptionID  string            `json:"optionId"`
	Value     string            `json:"value,omitempty"`
	Surcharge decimal.Decimal   `json:"surcharge"`
}

// CartItem is implemented by CustomizedItem, InStockItem and GiftCardItem only.
type CartItem interface {
	Kind() Kind
	line() Line
}

// CustomizedItem is an article made to order with fabric/text/option selections.
type CustomizedItem struct {
	Line
	Customizations []Customization `json:"customizations,omitempty"`
}

// InStockItem is a ready-made article taken from stock.
type InStockItem struct {
	Line
	StockID string `json:"stockId,omitempty"`
}

// GiftCardItem is a tax-exempt gift card purchase.
type GiftCardItem struct {
	Line
	Recipient string `json:"recipient,omitempty"`
}

func (CustomizedItem) Kind() Kind { return KindCustomized }
func (InStockItem) Kind() Kind    { return KindInStock }
func (GiftCardItem) Kind() Kind   { return KindGiftCard }

func (i CustomizedItem) line() Line { return i.Line }
func (i InStockItem) line() Line    { return i.Line }
func (i GiftCardItem) line() Line   { return i.Line }
