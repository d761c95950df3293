package order

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is an immutable order snapshot. Only its state and tracking number change after creation.
type Order struct {
	ID               uuid.UUID
	Reference        string
	State            State
	Email            string
	Items            []pricing.PricedItem
	Shipping         shipping.Shipping
	Extras           Extras
	Promotion        *promotion.Result
	Totals           Totals
	PaymentReference string
	TrackingNumber   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New builds an order from an aggregated breakdown.
func New(b Breakdown, state State, email string, now time.Time) Order {
	return Order{
		ID:        uuid.New(),
		Reference: NewReference(now),
		State:     state,
		Email:     email,
		Items:     b.Items,
		Shipping:  b.Shipping,
		Extras:    b.Extras,
		Promotion: b.Promotion,
		Totals:    b.Totals,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReference returns a short human readable reference such as AT-260301-7KQ2MZ.
func NewReference(now time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		copy(buf, uuid.New().String())
	}
	var sb strings.Builder
	sb.WriteString("AT-")
	sb.WriteString(now.UTC().Format("060102"))
	sb.WriteByte('-')
	for _, b := range buf {
		sb.WriteByte(referenceAlphabet[int(b)%len(referenceAlphabet)])
	}
	return sb.String()
}

type orderJSON struct {
	ID uuid.UUID `json:"id"`
	stateJSON
	Reference        string               `json:"reference"`
	Email            string               `json:"email"`
	Items            []pricing.PricedItem `json:"items"`
	Shipping         shipping.Shipping    `json:"shipping"`
	Extras           Extras               `json:"extras"`
	Promotion        *promotion.Result    `json:"promotion,omitempty"`
	Totals           Totals               `json:"totals"`
	PaymentReference string               `json:"paymentReference,omitempty"`
	TrackingNumber   string               `json:"trackingNumber,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// MarshalJSON inlines the state fields next to the order fields.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		ID:               o.ID,
		stateJSON:        encodeState(o.State),
		Reference:        o.Reference,
		Email:            o.Email,
		Items:            o.Items,
		Shipping:         o.Shipping,
		Extras:           o.Extras,
		Promotion:        o.Promotion,
		Totals:           o.Totals,
		PaymentReference: o.PaymentReference,
		TrackingNumber:   o.TrackingNumber,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	})
}

// UnmarshalJSON decodes an order encoded by MarshalJSON.
func (o *Order) UnmarshalJSON(data []byte) error {
	var raw orderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := decodeState(raw.stateJSON)
	if err != nil {
		return fmt.Errorf("order %s: %w", raw.ID, err)
	}
	*o = Order{
		ID:               raw.ID,
		Reference:        raw.Reference,
		State:            state,
		Email:            raw.Email,
		Items:            raw.Items,
		Shipping:         raw.Shipping,
		Extras:           raw.Extras,
		Promotion:        raw.Promotion,
		Totals:           raw.Totals,
		PaymentReference: raw.PaymentReference,
		TrackingNumber:   raw.TrackingNumber,
		CreatedAt:        raw.CreatedAt,
		UpdatedAt:        raw.UpdatedAt,
	}
	return nil
}
