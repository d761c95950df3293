package promotion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// Type discriminates discount variants.
type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFixed        Type = "fixed"
	TypeFreeShipping Type = "freeShipping"
)

var hundred = decimal.NewFromInt(100)

// Discount is implemented by Percentage, Fixed and FreeShipping.
type Discount interface {
	Type() Type
	magnitude() decimal.Decimal
}

// Percentage removes Percent% of the filtered subtotal.
type Percentage struct{ Percent decimal.Decimal }

// Fixed removes Amount (tax excluded) from the filtered subtotal, capped at that subtotal.
type Fixed struct{ Amount decimal.Decimal }

// FreeShipping zeroes the shipping price.
type FreeShipping struct{}

func (Percentage) Type() Type   { return TypePercentage }
func (Fixed) Type() Type        { return TypeFixed }
func (FreeShipping) Type() Type { return TypeFreeShipping }

func (d Percentage) magnitude() decimal.Decimal { return d.Percent }
func (d Fixed) magnitude() decimal.Decimal      { return d.Amount }
func (FreeShipping) magnitude() decimal.Decimal { return decimal.Zero }

// Conditions restrict when a code can be used. Nil fields are unrestricted.
type Conditions struct {
	MinAmount  *decimal.Decimal
	Until      *time.Time
	UsageLimit *int
}

// Filters restrict which cart lines a discount applies to. Set filters combine with AND.
type Filters struct {
	Category  *pricing.Kind
	ArticleID *string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Category == nil && f.ArticleID == nil
}

// Matches reports whether a priced line passes every set filter.
func (f Filters) Matches(item pricing.PricedItem) bool {
	if f.Category != nil && item.Kind != *f.Category {
		return false
	}
	if f.ArticleID != nil && item.Line.ArticleID != *f.ArticleID {
		return false
	}
	return true
}

// Code is a parsed promotion code.
type Code struct {
	ID         uuid.UUID
	Code       string
	Discount   Discount
	Conditions Conditions
	Filters    Filters
	Used       int
	CreatedAt  time.Time
}

// Definition is the flat representation used by the admin API and storage.
type Definition struct {
	Code       string           `json:"code" validate:"required,max=64"`
	Type       Type             `json:"type" validate:"required,oneof=percentage fixed freeShipping"`
	Discount   decimal.Decimal  `json:"discount"`
	MinAmount  *decimal.Decimal `json:"minAmount,omitempty"`
	Until      *time.Time       `json:"until,omitempty"`
	UsageLimit *int             `json:"usageLimit,omitempty" validate:"omitempty,min=1"`
	Category   *pricing.Kind    `json:"category,omitempty"`
	ArticleID  *string          `json:"articleId,omitempty" validate:"omitempty,min=1"`
}

var validate = validator.New()

// NormalizeCode trims and upper-cases a submitted code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Parse validates a definition and builds the matching Code.
func Parse(def Definition) (Code, error) {
	def.Code = NormalizeCode(def.Code)
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Code{}, fmt.Errorf("%w: %s failed %s", ErrInvalidDefinition, verrs[0].Field(), verrs[0].Tag())
		}
		return Code{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	filters := Filters{Category: def.Category, ArticleID: def.ArticleID}
	if filters.Category != nil {
		if !filters.Category.Valid() {
			return Code{}, fmt.Errorf("%w: unknown category %q", ErrInvalidDefinition, *filters.Category)
		}
		if *filters.Category == pricing.KindGiftCard {
			return Code{}, fmt.Errorf("%w: gift cards cannot be discounted", ErrInvalidDefinition)
		}
	}
	if def.MinAmount != nil && def.MinAmount.IsNegative() {
		return Code{}, fmt.Errorf("%w: negative minimum amount", ErrInvalidDefinition)
	}

	var discount Discount
	switch def.Type {
	case TypePercentage:
		if def.Discount.LessThanOrEqual(decimal.Zero) || def.Discount.GreaterThan(hundred) {
			return Code{}, fmt.Errorf("%w: percentage must be within (0, 100]", ErrInvalidDefinition)
		}
		discount = Percentage{Percent: def.Discount}
	case TypeFixed:
		if def.Discount.LessThanOrEqual(decimal.Zero) {
			return Code{}, fmt.Errorf("%w: fixed amount must be positive", ErrInvalidDefinition)
		}
		discount = Fixed{Amount: def.Discount}
	case TypeFreeShipping:
		if !filters.Empty() {
			return Code{}, ErrInvalidFilterCombination
		}
		discount = FreeShipping{}
	}
	return Code{
		Code:       def.Code,
		Discount:   discount,
		Conditions: Conditions{MinAmount: def.MinAmount, Until: def.Until, UsageLimit: def.UsageLimit},
		Filters:    filters,
	}, nil
}

// Definition flattens the code back into its admin/storage representation.
func (c Code) Definition() Definition {
	def := Definition{
		Code:       c.Code,
		MinAmount:  c.Conditions.MinAmount,
		Until:      c.Conditions.Until,
		UsageLimit: c.Conditions.UsageLimit,
		Category:   c.Filters.Category,
		ArticleID:  c.Filters.ArticleID,
	}
	if c.Discount != nil {
		def.Type = c.Discount.Type()
		def.Discount = c.Discount.magnitude()
	}
	return def
}

// MarshalJSON renders the code with its definition fields inlined.
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID uuid.UUID `json:"id"`
		Definition
		Used      int       `json:"used"`
		CreatedAt time.Time `json:"createdAt"`
	}{ID: c.ID, Definition: c.Definition(), Used: c.Used, CreatedAt: c.CreatedAt})
}
