package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/events"
)

// InsertDomainEvent records an event in the outbox table.
func (q *Queries) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	ev := events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}
	var raw []byte
	err := q.db.QueryRow(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4) RETURNING payload, occurred_at`, ev.ID, topic, aggregateID, payload).Scan(&raw, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, err
	}
	ev.Payload = raw
	return ev, nil
}

// ListDomainEvents returns the events recorded for an aggregate in order.
func (q *Queries) ListDomainEvents(ctx context.Context, aggregateID uuid.UUID) ([]events.Event, error) {
	rows, err := q.db.Query(ctx, `SELECT id, topic, aggregate_id, payload, occurred_at
FROM domain_events WHERE aggregate_id = $1 ORDER BY occurred_at, id`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var ev events.Event
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &raw, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Payload = raw
		out = append(out, ev)
	}
	return out, rows.Err()
}
