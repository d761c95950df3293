package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/noah-isme/backend-atelier/internal/resilience"
)

type flakyProvider struct {
	errs  []error
	calls int
}

func (f *flakyProvider) CreateSession(context.Context, SessionRequest) (Session, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return Session{}, err
		}
	}
	return Session{ID: "cs_test_ok", URL: "https://checkout.stripe.test/cs_test_ok"}, nil
}

func (f *flakyProvider) VerifyWebhook([]byte, string) (WebhookEvent, error) {
	return WebhookEvent{Type: EventIgnored}, nil
}

func TestGuardedRetriesServerErrors(t *testing.T) {
	inner := &flakyProvider{errs: []error{&stripe.Error{HTTPStatusCode: 503}}}
	g := NewGuarded(inner, resilience.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	sess, err := g.CreateSession(context.Background(), SessionRequest{Reference: "AT-1"})
	require.NoError(t, err)
	require.Equal(t, "cs_test_ok", sess.ID)
	require.Equal(t, 2, inner.calls)
}

func TestGuardedDoesNotRetryClientErrors(t *testing.T) {
	declined := &stripe.Error{HTTPStatusCode: 400, Msg: "invalid currency"}
	inner := &flakyProvider{errs: []error{declined}}
	g := NewGuarded(inner, resilience.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	_, err := g.CreateSession(context.Background(), SessionRequest{Reference: "AT-2"})
	var serr *stripe.Error
	require.True(t, errors.As(err, &serr))
	require.Equal(t, 1, inner.calls)
}

func TestGuardedOpensBreaker(t *testing.T) {
	breaker := resilience.NewBreaker(ProviderStripe, 2, 0.5, time.Minute)
	inner := &flakyProvider{errs: []error{errors.New("dial tcp: timeout"), errors.New("dial tcp: timeout")}}
	g := NewGuarded(inner, resilience.Policy{Breaker: breaker, MaxAttempts: 2, BaseBackoff: time.Millisecond})

	_, err := g.CreateSession(context.Background(), SessionRequest{Reference: "AT-3"})
	require.Error(t, err)
	require.Equal(t, resilience.Open, breaker.State())

	_, err = g.CreateSession(context.Background(), SessionRequest{Reference: "AT-3"})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, inner.calls)
}

func TestRetryableClassification(t *testing.T) {
	require.False(t, Retryable(nil))
	require.False(t, Retryable(ErrInvalidAmount))
	require.True(t, Retryable(&stripe.Error{HTTPStatusCode: 429}))
	require.False(t, Retryable(&stripe.Error{HTTPStatusCode: 402}))
	require.True(t, Retryable(errors.New("connection reset")))
}
