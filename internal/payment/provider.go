package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/order"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidAmount is returned when an amount cannot be expressed in cents.
	ErrInvalidAmount = errors.New("payment: invalid amount")
)

// SessionRequest captures what a provider needs to open a hosted payment page.
type SessionRequest struct {
	// Reference is echoed back by the provider as the client reference.
	Reference  string
	Email      string
	Currency   string
	Lines      []order.PaymentLine
	Total      decimal.Decimal
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Session is a hosted payment page opened with a provider.
type Session struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EventType is a normalised webhook event kind.
type EventType string

const (
	EventSessionCompleted EventType = "session.completed"
	EventSessionExpired   EventType = "session.expired"
	EventIgnored          EventType = "ignored"
)

// WebhookEvent is the normalised content of a verified provider notification.
type WebhookEvent struct {
	ID        string
	Type      EventType
	SessionID string
	// PaymentReference identifies the captured payment; it doubles as the order idempotency key.
	PaymentReference string
	Paid             bool
	AmountTotal      decimal.Decimal
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// ToCents converts a two-decimal amount into minor units.
func ToCents(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.IsInteger() || amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return shifted.IntPart(), nil
}

// FromCents converts minor units back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ChargeLine is a provider line item in minor units.
type ChargeLine struct {
	Label     string
	UnitCents int64
	Quantity  int64
}

// ChargeLines converts payment lines into provider line items whose sum equals total.
// When a line total is not an exact multiple of its quantity in cents, or the lines do not
// add up to the total (a gift card was deducted), everything collapses into one line.
func ChargeLines(lines []order.PaymentLine, total decimal.Decimal, summary string) ([]ChargeLine, error) {
	totalCents, err := ToCents(total)
	if err != nil {
		return nil, err
	}
	out := make([]ChargeLine, 0, len(lines))
	var sum int64
	collapse := false
	for _, l := range lines {
		lineCents, err := ToCents(l.TotalTaxIncluded)
		if err != nil {
			return nil, err
		}
		qty := int64(l.Quantity)
		if qty <= 0 || lineCents%qty != 0 {
			collapse = true
			break
		}
		out = append(out, ChargeLine{Label: l.Label, UnitCents: lineCents / qty, Quantity: qty})
		sum += lineCents
	}
	if collapse || sum != totalCents {
		return []ChargeLine{{Label: summary, UnitCents: totalCents, Quantity: 1}}, nil
	}
	return out, nil
}
