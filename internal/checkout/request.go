package checkout

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

var (
	// ErrInvalidRequest is returned when a checkout payload fails validation.
	ErrInvalidRequest = errors.New("invalid checkout request")
	// ErrSessionNotFound is returned when a payment session has no stored checkout snapshot.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrPaymentsDisabled is returned for card operations when no payment provider is configured.
	ErrPaymentsDisabled = errors.New("card payments are not configured")
)

// Request is a checkout as submitted by the storefront.
type Request struct {
	Items          []catalog.ItemInput  `json:"items" validate:"required,min=1,max=50,dive"`
	PromotionCode  string               `json:"promotionCode,omitempty" validate:"max=64"`
	Shipping       shipping.MethodInput `json:"shipping"`
	Extras         order.ExtraOptions   `json:"extras"`
	GiftCardAmount decimal.Decimal      `json:"giftCardAmount"`
	// ExpectedTotal is the tax-included total displayed to the customer.
	ExpectedTotal *decimal.Decimal `json:"expectedTotal,omitempty"`
	Email         string           `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

var validate = validator.New()

func (r Request) validate(requireEmail bool) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if requireEmail && strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	if r.GiftCardAmount.IsNegative() {
		return fmt.Errorf("%w: giftCardAmount must not be negative", ErrInvalidRequest)
	}
	return nil
}

// Quote is the priced breakdown of a checkout before anything is persisted.
type Quote struct {
	Items     []pricing.PricedItem `json:"items"`
	Shipping  shipping.Shipping    `json:"shipping"`
	Extras    order.Extras         `json:"extras"`
	Promotion *promotion.Result    `json:"promotion,omitempty"`
	Totals    order.Totals         `json:"totals"`
}

func quoteOf(b order.Breakdown) Quote {
	return Quote{
		Items:     b.Items,
		Shipping:  b.Shipping,
		Extras:    b.Extras,
		Promotion: b.Promotion,
		Totals:    b.Totals,
	}
}

// PreviewRequest asks for a dry-run evaluation of a promotion code.
type PreviewRequest struct {
	Code  string              `json:"code" validate:"required,max=64"`
	Items []catalog.ItemInput `json:"items" validate:"required,min=1,max=50,dive"`
}

// Preview is the outcome of a promotion code dry run.
type Preview struct {
	Promotion promotion.Result `json:"promotion"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
}

// CardSession is returned when a card payment page has been opened.
type CardSession struct {
	SessionID string       `json:"sessionId"`
	URL       string       `json:"url"`
	Reference string       `json:"reference"`
	Totals    order.Totals `json:"totals"`
}

// WebhookOutcome summarises how a payment notification was handled.
type WebhookOutcome struct {
	Result string       `json:"result"`
	Order  *order.Order `json:"order,omitempty"`
}

const (
	OutcomeCreated = "created"
	OutcomeReplay  = "replay"
	OutcomeIgnored = "ignored"
	OutcomeExpired = "expired"
)
