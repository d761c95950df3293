package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// Option is a customization offered on a made-to-order article.
type Option struct {
	ID    string                    `json:"id"`
	Kind  pricing.CustomizationKind `json:"type"`
	Label string                    `json:"label"`
	// Surcharge applies to text options with a value and to boolean options set to true.
	Surcharge decimal.Decimal `json:"surcharge"`
	// Choices lists the fabrics of a fabric option with their own surcharge.
	Choices map[string]decimal.Decimal `json:"choices,omitempty"`
}

// Article is a sellable catalog entry. Prices are tax excluded, weights in grams.
type Article struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       pricing.Kind      `json:"type"`
	UnitPrice  decimal.Decimal   `json:"unitPrice"`
	UnitWeight int               `json:"unitWeight"`
	Options    map[string]Option `json:"options,omitempty"`
	Enabled    bool              `json:"enabled"`
}
