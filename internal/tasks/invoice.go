package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/notify"
	"github.com/noah-isme/backend-atelier/internal/order"
)

// InvoiceStore loads orders and stores their invoice snapshots.
type InvoiceStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	UpsertInvoice(ctx context.Context, inv order.Invoice) error
}

// InvoiceHandler builds the invoice snapshot handed to the external renderer.
type InvoiceHandler struct {
	Store  InvoiceStore
	Now    func() time.Time
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler. Re-running it for the same order replaces the snapshot.
func (h InvoiceHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p events.InvoicePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode invoice payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.OrderID == uuid.Nil {
		return fmt.Errorf("invoice payload without order id: %w", asynq.SkipRetry)
	}
	o, err := h.Store.GetOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.Logger.Warn().Str("order_id", p.OrderID.String()).Msg("invoice requested for unknown order")
			return fmt.Errorf("order %s: %w", p.OrderID, asynq.SkipRetry)
		}
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	inv := order.NewInvoice(o, h.now())
	if err := h.Store.UpsertInvoice(ctx, inv); err != nil {
		return fmt.Errorf("store invoice %s: %w", inv.Number, err)
	}
	h.Logger.Info().
		Str("order_id", o.ID.String()).
		Str("invoice", inv.Number).
		Str("status", string(inv.Status)).
		Str("event_id", p.EventID.String()).
		Msg("invoice snapshot stored")
	return nil
}

func (h InvoiceHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// NewServeMux routes every task type handled by the worker.
func NewServeMux(invoices InvoiceHandler, webhooks notify.DeliveryHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(events.TypeInvoiceGenerate, invoices)
	mux.Handle(notify.TypeWebhookDeliver, webhooks)
	return mux
}
