package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/noah-isme/backend-atelier/internal/order"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1", ExpiresAt: 1700000000}, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestToCents(t *testing.T) {
	c, err := ToCents(d("94.00"))
	require.NoError(t, err)
	require.Equal(t, int64(9400), c)

	c, err = ToCents(d("0.1"))
	require.NoError(t, err)
	require.Equal(t, int64(10), c)

	_, err = ToCents(d("1.005"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ToCents(d("-1"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Equal(t, "12.34", FromCents(1234).StringFixed(2))
}

func TestChargeLinesItemised(t *testing.T) {
	lines := []order.PaymentLine{
		{Label: "Tote bag", UnitPrice: d("12.00"), Quantity: 3, TotalTaxIncluded: d("36.00")},
		{Label: "Shipping (Colissimo)", UnitPrice: d("5.94"), Quantity: 1, TotalTaxIncluded: d("5.94")},
	}
	out, err := ChargeLines(lines, d("41.94"), "Order AT-1")
	require.NoError(t, err)
	require.Equal(t, []ChargeLine{
		{Label: "Tote bag", UnitCents: 1200, Quantity: 3},
		{Label: "Shipping (Colissimo)", UnitCents: 594, Quantity: 1},
	}, out)
}

func TestChargeLinesCollapsesWhenUnitPriceIsInexact(t *testing.T) {
	lines := []order.PaymentLine{
		{Label: "Cushion", Quantity: 3, TotalTaxIncluded: d("100.00")},
	}
	out, err := ChargeLines(lines, d("100.00"), "Order AT-1")
	require.NoError(t, err)
	require.Equal(t, []ChargeLine{{Label: "Order AT-1", UnitCents: 10000, Quantity: 1}}, out)
}

func TestChargeLinesCollapsesWhenGiftCardDeducted(t *testing.T) {
	lines := []order.PaymentLine{
		{Label: "Apron", Quantity: 1, TotalTaxIncluded: d("40.00")},
	}
	out, err := ChargeLines(lines, d("30.00"), "Order AT-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(3000), out[0].UnitCents)
}

func TestCreateSessionBuildsPriceData(t *testing.T) {
	fake := &fakeSessions{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &Stripe{Sessions: fake, Now: func() time.Time { return now }}

	sess, err := p.CreateSession(context.Background(), SessionRequest{
		Reference:  "AT-260301-ABC123",
		Email:      "client@example.com",
		Currency:   "EUR",
		Lines:      []order.PaymentLine{{Label: "Apron", Quantity: 2, TotalTaxIncluded: d("50.00")}},
		Total:      d("50.00"),
		SuccessURL: "https://shop.test/ok",
		CancelURL:  "https://shop.test/cancel",
		Metadata:   map[string]string{"snapshot": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", sess.ID)
	require.Equal(t, "https://checkout.stripe.test/cs_test_1", sess.URL)

	params := fake.params
	require.NotNil(t, params)
	require.Equal(t, "payment", *params.Mode)
	require.Equal(t, "AT-260301-ABC123", *params.ClientReferenceID)
	require.Equal(t, "client@example.com", *params.CustomerEmail)
	require.Equal(t, now.Add(30*time.Minute).Unix(), *params.ExpiresAt)
	require.Len(t, params.LineItems, 1)
	li := params.LineItems[0]
	require.Equal(t, "eur", *li.PriceData.Currency)
	require.Equal(t, int64(2500), *li.PriceData.UnitAmount)
	require.Equal(t, int64(2), *li.Quantity)
	require.Equal(t, "abc", params.Metadata["snapshot"])
}

func TestCreateSessionPropagatesProviderError(t *testing.T) {
	p := &Stripe{Sessions: &fakeSessions{err: errors.New("boom")}}
	_, err := p.CreateSession(context.Background(), SessionRequest{Total: d("1.00")})
	require.Error(t, err)
}

func signed(t *testing.T, secret, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestVerifyWebhookCompletedSession(t *testing.T) {
	p := &Stripe{WebhookSecret: "whsec_test"}
	body := fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":"checkout.session.completed",
"data":{"object":{"id":"cs_test_1","object":"checkout.session","amount_total":9400,"payment_status":"paid"}}}`, stripe.APIVersion)
	header, payload := signed(t, "whsec_test", body)

	ev, err := p.VerifyWebhook(payload, header)
	require.NoError(t, err)
	require.Equal(t, EventSessionCompleted, ev.Type)
	require.Equal(t, "cs_test_1", ev.SessionID)
	require.Equal(t, "cs_test_1", ev.PaymentReference)
	require.True(t, ev.Paid)
	require.Equal(t, "94.00", ev.AmountTotal.StringFixed(2))
}

func TestVerifyWebhookIgnoresOtherEvents(t *testing.T) {
	p := &Stripe{WebhookSecret: "whsec_test"}
	body := fmt.Sprintf(`{"id":"evt_2","object":"event","api_version":%q,"type":"customer.created","data":{"object":{"id":"cus_1"}}}`, stripe.APIVersion)
	header, payload := signed(t, "whsec_test", body)

	ev, err := p.VerifyWebhook(payload, header)
	require.NoError(t, err)
	require.Equal(t, EventIgnored, ev.Type)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	p := &Stripe{WebhookSecret: "whsec_test"}
	header, payload := signed(t, "whsec_other", `{"id":"evt_3","object":"event","type":"checkout.session.completed"}`)
	_, err := p.VerifyWebhook(payload, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}
