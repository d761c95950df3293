package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/resilience"
)

type stubStore struct {
	topic   string
	payload []byte
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.topic = topic
	s.payload = payload
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, map[string]any{"reference": "AT-1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.topic)
	require.JSONEq(t, `{"reference":"AT-1"}`, string(store.payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.Equal(t, aggregate, notifier.events[0].AggregateID)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.New(), []byte("{not json"))
	require.Error(t, err)
}

func TestPublishJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, ok}}

	err := bus.Publish(context.Background(), events.Event{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New()})
	require.ErrorContains(t, err, "broker down")
	require.Len(t, ok.events, 1)
}

func TestTaskNotifierEnqueuesInvoiceTasks(t *testing.T) {
	enq := &captureEnqueuer{}
	notifier := events.TaskNotifier{Client: enq, Queue: "invoices"}
	orderID := uuid.New()

	require.NoError(t, notifier.Notify(context.Background(), events.Event{ID: uuid.New(), Topic: events.TopicOrderCreated, AggregateID: orderID}))
	require.NoError(t, notifier.Notify(context.Background(), events.Event{ID: uuid.New(), Topic: events.TopicOrderWorkflowUpdated, AggregateID: orderID}))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TypeInvoiceGenerate, enq.tasks[0].Type())

	var payload events.InvoicePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, orderID, payload.OrderID)
	require.Len(t, enq.opts[0], 2)
}

func TestKafkaRecordIsKeyedByAggregate(t *testing.T) {
	notifier, err := events.NewKafkaNotifier([]string{"127.0.0.1:9092"}, "atelier.events")
	require.NoError(t, err)
	defer notifier.Close()

	ev := events.Event{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), OccurredAt: time.Now()}
	rec, err := notifier.Record(ev)
	require.NoError(t, err)
	require.Equal(t, "atelier.events", rec.Topic)
	require.Equal(t, ev.AggregateID.String(), string(rec.Key))
	require.Equal(t, "event-topic", rec.Headers[0].Key)
	require.Equal(t, events.TopicOrderPaid, string(rec.Headers[0].Value))
}

func TestGuardedNotifierStopsCallingWhenOpen(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	breaker := resilience.NewBreaker("kafka", 1, 0.5, time.Minute)
	guarded := events.GuardedNotifier{Notifier: failing, Policy: resilience.Policy{Breaker: breaker, MaxAttempts: 1}}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{guarded}}

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, uuid.New(), nil)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Len(t, failing.events, 1)
}
