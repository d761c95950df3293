package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeInvoiceGenerate is the asynq task type that renders an order invoice snapshot.
const TypeInvoiceGenerate = "invoice:generate"

// InvoicePayload is the payload of TypeInvoiceGenerate tasks.
type InvoicePayload struct {
	OrderID uuid.UUID `json:"orderId"`
	EventID uuid.UUID `json:"eventId"`
}

// NewInvoiceTask builds an invoice generation task for an order.
func NewInvoiceTask(orderID, eventID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(InvoicePayload{OrderID: orderID, EventID: eventID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceGenerate, payload, asynq.MaxRetry(10), asynq.Timeout(time.Minute)), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier enqueues invoice generation when an order is created or paid.
type TaskNotifier struct {
	Client Enqueuer
	Queue  string
}

// Notify enqueues a task for invoice-relevant events and ignores the rest.
func (n TaskNotifier) Notify(ctx context.Context, ev Event) error {
	if n.Client == nil {
		return nil
	}
	switch ev.Topic {
	case TopicOrderCreated, TopicOrderPaid:
	default:
		return nil
	}
	task, err := NewInvoiceTask(ev.AggregateID, ev.ID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeInvoiceGenerate, err)
	}
	return nil
}
