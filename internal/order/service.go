package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

// Tx is the transactional view used to mutate an existing order.
type Tx interface {
	events.EventStore
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	UpdateOrderState(ctx context.Context, id uuid.UUID, state State, trackingNumber string, updatedAt time.Time) error
}

// Store loads orders and runs order mutations in a transaction.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Service handles the post-creation lifecycle of orders. It never re-creates an order;
// every mutation records its own event.
type Service struct {
	Store  Store
	Events *events.Bus
	Now    func() time.Time
	Logger zerolog.Logger
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.Store.GetOrder(ctx, id)
}

// MarkPaid confirms reception of a bank transfer.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.mutate(ctx, id, events.TopicOrderPaid, func(o *Order) error {
		paid, err := MarkPaid(o.State, s.now())
		if err != nil {
			return err
		}
		o.State = paid
		return nil
	})
}

// UpdateWorkflow advances a paid order. A tracking number may be attached when the
// order enters delivery.
func (s *Service) UpdateWorkflow(ctx context.Context, id uuid.UUID, step shipping.WorkflowStep, trackingNumber string) (Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	return s.mutate(ctx, id, events.TopicOrderWorkflowUpdated, func(o *Order) error {
		next, err := Advance(o.State, step)
		if err != nil {
			return err
		}
		if trackingNumber != "" {
			if step != shipping.StepInDelivery {
				return fmt.Errorf("%w: tracking numbers are attached when entering %s", ErrInvalidState, shipping.StepInDelivery)
			}
			if _, pickup := o.Shipping.Method.(shipping.PickupAtWorkshop); pickup {
				return fmt.Errorf("%w: pickup orders have no tracking number", ErrInvalidState)
			}
			o.TrackingNumber = trackingNumber
		}
		o.State = next
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, topic string, change func(*Order) error) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	var (
		updated Order
		ev      events.Event
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := change(&current); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := tx.UpdateOrderState(ctx, current.ID, current.State, current.TrackingNumber, current.UpdatedAt); err != nil {
			return fmt.Errorf("update order state: %w", err)
		}
		ev, err = events.Record(ctx, tx, topic, current.ID, NewEventPayload(current))
		if err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if pubErr := s.Events.Publish(ctx, ev); pubErr != nil {
		s.Logger.Warn().Err(pubErr).Str("order_id", id.String()).Str("topic", topic).Msg("order event fan-out failed")
	}
	s.Logger.Info().Str("order_id", id.String()).Str("status", string(updated.State.Status())).Str("topic", topic).Msg("order updated")
	return updated, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// EventPayload is the payload shared by order events.
type EventPayload struct {
	OrderID        uuid.UUID             `json:"orderId"`
	Reference      string                `json:"reference"`
	Email          string                `json:"email,omitempty"`
	Status         Status                `json:"status"`
	WorkflowStep   shipping.WorkflowStep `json:"workflowStep,omitempty"`
	TrackingNumber string                `json:"trackingNumber,omitempty"`
	Total          string                `json:"totalTaxIncluded"`
	PromotionCode  string                `json:"promotionCode,omitempty"`
}

// NewEventPayload summarises o for domain events.
func NewEventPayload(o Order) EventPayload {
	p := EventPayload{
		OrderID:        o.ID,
		Reference:      o.Reference,
		Email:          o.Email,
		Status:         statusOf(o.State),
		TrackingNumber: o.TrackingNumber,
		Total:          o.Totals.TotalTaxIncluded.StringFixed(2),
	}
	if paid, ok := o.State.(Paid); ok {
		p.WorkflowStep = paid.WorkflowStep
	}
	if o.Promotion != nil {
		p.PromotionCode = o.Promotion.Code
	}
	return p
}
