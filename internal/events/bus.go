package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/obs"
)

// Event is a persisted domain event.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// EventStore defines the persistence operation required by the event bus.
// Transactions implement it too so events commit with the change they describe.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error)
}

// Notifier reacts to emitted events (broker publishing, background tasks).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Logger    zerolog.Logger
}

// Emit records the event with the bus store and dispatches it to all notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	ev, err := Record(ctx, b.Store, topic, aggregateID, payload)
	if err != nil {
		return Event{}, err
	}
	return ev, b.Publish(ctx, ev)
}

// Record persists an event through store without notifying anyone.
func Record(ctx context.Context, store EventStore, topic string, aggregateID uuid.UUID, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := store.InsertDomainEvent(ctx, topic, aggregateID, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, nil
}

// Publish fans an already persisted event out to every notifier. Notifier failures
// are joined; the event itself stays recorded.
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	if b == nil {
		return nil
	}
	var joined error
	for _, ev := range events {
		for _, notifier := range b.Notifiers {
			if notifier == nil {
				continue
			}
			name := fmt.Sprintf("%T", notifier)
			if err := notifier.Notify(ctx, ev); err != nil {
				joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
				b.Logger.Warn().Err(err).Str("topic", ev.Topic).Str("notifier", name).Msg("event notification failed")
				observe(name, "error")
				continue
			}
			observe(name, "ok")
		}
	}
	return joined
}

func observe(notifier, result string) {
	if obs.EventPublishTotal != nil {
		obs.EventPublishTotal.WithLabelValues(notifier, result).Inc()
	}
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}
