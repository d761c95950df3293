package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v81"

	"github.com/noah-isme/backend-atelier/internal/resilience"
)

// Guarded wraps a Provider so session creation goes through a breaker with retries.
// Webhook verification is local and passes straight through.
type Guarded struct {
	Provider Provider
	Policy   resilience.Policy
}

// NewGuarded builds a Guarded provider. When policy.Retryable is nil, Stripe client
// errors (4xx) are treated as permanent.
func NewGuarded(p Provider, policy resilience.Policy) *Guarded {
	if policy.Retryable == nil {
		policy.Retryable = Retryable
	}
	return &Guarded{Provider: p, Policy: policy}
}

// CreateSession opens a checkout session under the guard policy.
func (g *Guarded) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	var out Session
	err := g.Policy.Do(ctx, func(ctx context.Context) error {
		sess, err := g.Provider.CreateSession(ctx, req)
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

// VerifyWebhook delegates to the wrapped provider.
func (g *Guarded) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	return g.Provider.VerifyWebhook(payload, signature)
}

// Retryable reports whether a provider error is transient. Amount errors and Stripe
// responses below 500 (other than 429) will not succeed on retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidSignature) {
		return false
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		return serr.HTTPStatusCode == 0 || serr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}

var _ Provider = (*Guarded)(nil)
