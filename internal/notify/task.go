package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/lock"
	"github.com/noah-isme/backend-atelier/internal/obs"
)

// TypeWebhookDeliver is the asynq task type carrying one outbound webhook delivery.
const TypeWebhookDeliver = "webhook:deliver"

// DefaultMaxAttempts bounds delivery retries before asynq archives the task.
const DefaultMaxAttempts = 6

// Notifier enqueues a webhook delivery for every published domain event.
type Notifier struct {
	Client     events.Enqueuer
	Queue      string
	MaxRetries int
}

// Notify implements events.Notifier. Re-publishing the same event is a no-op.
func (n Notifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	retries := n.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxAttempts
	}
	opts := []asynq.Option{
		asynq.TaskID("webhook-" + ev.ID.String()),
		asynq.MaxRetry(retries),
		asynq.Timeout(30 * time.Second),
	}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if _, err := n.Client.EnqueueContext(ctx, asynq.NewTask(TypeWebhookDeliver, payload), opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeWebhookDeliver, err)
	}
	return nil
}

// Deliverer sends one event to the subscriber.
type Deliverer interface {
	Deliver(ctx context.Context, ev events.Event) (int, error)
}

// DeliveryHandler processes TypeWebhookDeliver tasks on the worker.
type DeliveryHandler struct {
	Webhook Deliverer
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler. Rejections by the receiver are not retried.
func (h DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode webhook payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.Webhook == nil {
		h.Logger.Debug().Str("event_id", ev.ID.String()).Msg("webhook delivery skipped, no endpoint configured")
		return nil
	}
	deliver := func(ctx context.Context) error { return h.deliver(ctx, ev) }
	if h.Locker == nil {
		return deliver(ctx)
	}
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return h.Locker.WithLock(ctx, "lock:webhook:"+ev.ID.String(), ttl, deliver)
}

func (h DeliveryHandler) deliver(ctx context.Context, ev events.Event) error {
	status, err := h.Webhook.Deliver(ctx, ev)
	log := h.Logger.With().Str("event_id", ev.ID.String()).Str("topic", ev.Topic).Int("status", status).Logger()
	switch {
	case err == nil:
		obs.ObserveWebhookDelivery("delivered")
		log.Info().Msg("webhook delivered")
		return nil
	case errors.Is(err, ErrRejected):
		obs.ObserveWebhookDelivery("rejected")
		log.Warn().Err(err).Msg("webhook rejected by receiver")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		obs.ObserveWebhookDelivery("failed")
		log.Warn().Err(err).Msg("webhook delivery failed")
		return err
	}
}
