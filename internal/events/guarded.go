package events

import (
	"context"

	"github.com/noah-isme/backend-atelier/internal/resilience"
)

// GuardedNotifier runs another notifier under a resilience policy so a broker outage
// opens the breaker instead of stalling every checkout.
type GuardedNotifier struct {
	Notifier Notifier
	Policy   resilience.Policy
}

// Notify forwards ev under the policy.
func (g GuardedNotifier) Notify(ctx context.Context, ev Event) error {
	if g.Notifier == nil {
		return nil
	}
	return g.Policy.Do(ctx, func(ctx context.Context) error {
		return g.Notifier.Notify(ctx, ev)
	})
}
