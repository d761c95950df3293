package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProviderStripe names the Stripe provider in metrics and logs.
const ProviderStripe = "stripe"

// SessionCreator opens Stripe checkout sessions. *session.Client satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Stripe implements Provider with Stripe Checkout.
type Stripe struct {
	Sessions      SessionCreator
	WebhookSecret string
	// SessionTTL bounds how long the hosted page stays open. Stripe requires at least 30 minutes.
	SessionTTL time.Duration
	// Summary labels the single line used when the order cannot be itemised exactly.
	Summary string
	Now     func() time.Time
}

// NewStripe builds a Stripe provider backed by the official API client.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{Sessions: sc.CheckoutSessions, WebhookSecret: webhookSecret}
}

// CreateSession opens a hosted checkout page charging exactly req.Total.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if s == nil || s.Sessions == nil {
		return Session{}, errors.New("stripe provider not configured")
	}
	ctx, span := otel.Tracer("payment.Stripe").Start(ctx, "Stripe.CreateSession")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", req.Reference))

	summary := s.Summary
	if summary == "" {
		summary = "Order " + req.Reference
	}
	lines, err := ChargeLines(req.Lines, req.Total, summary)
	if err != nil {
		return Session{}, err
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyEUR)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		ExpiresAt:         stripe.Int64(s.now().Add(s.ttl()).Unix()),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	for _, l := range lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(l.UnitCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Label),
				},
			},
			Quantity: stripe.Int64(l.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey("checkout-session-" + req.Reference)
	params.Context = ctx

	sess, err := s.Sessions.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	span.SetAttributes(attribute.String("payment.session_id", sess.ID))
	return Session{ID: sess.ID, URL: sess.URL, ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC()}, nil
}

// VerifyWebhook checks the Stripe-Signature header and normalises checkout session events.
func (s *Stripe) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := WebhookEvent{ID: ev.ID, Type: EventIgnored}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		out.Type = EventSessionCompleted
	case stripe.EventTypeCheckoutSessionExpired:
		out.Type = EventSessionExpired
	default:
		return out, nil
	}
	if ev.Data == nil {
		return WebhookEvent{}, errors.New("stripe: event without data")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	out.SessionID = sess.ID
	out.PaymentReference = sess.ID
	out.AmountTotal = FromCents(sess.AmountTotal)
	out.Paid = sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	return out, nil
}

func (s *Stripe) ttl() time.Duration {
	if s.SessionTTL < 30*time.Minute {
		return 30 * time.Minute
	}
	return s.SessionTTL
}

func (s *Stripe) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
