package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-atelier/internal/order"
)

const orderColumns = `document, state, tracking_number, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		document  []byte
		state     []byte
		tracking  *string
		updatedAt time.Time
	)
	if err := row.Scan(&document, &state, &tracking, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, err
	}
	var o order.Order
	if err := json.Unmarshal(document, &o); err != nil {
		return order.Order{}, fmt.Errorf("decode order document: %w", err)
	}
	st, err := order.UnmarshalState(state)
	if err != nil {
		return order.Order{}, fmt.Errorf("decode order %s state: %w", o.ID, err)
	}
	o.State = st
	o.TrackingNumber = ""
	if tracking != nil {
		o.TrackingNumber = *tracking
	}
	o.UpdatedAt = updatedAt.UTC()
	return o, nil
}

// GetOrder loads an order by id.
func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetOrderForUpdate loads an order and locks its row.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

// GetOrderByPaymentReference finds the order created for a captured payment.
func (q *Queries) GetOrderByPaymentReference(ctx context.Context, ref string) (order.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, ref))
}

const insertOrder = `INSERT INTO orders (
    id, reference, status, state, email, payment_reference, promotion_code_id,
    total_tax_excluded, total_tax_included, tracking_number, document, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// InsertOrder stores a new order. The document keeps the priced snapshot; mutable fields
// live in their own columns.
func (q *Queries) InsertOrder(ctx context.Context, o order.Order) error {
	document, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	state, err := order.MarshalState(o.State)
	if err != nil {
		return fmt.Errorf("encode order state: %w", err)
	}
	var promotionID *uuid.UUID
	if o.Promotion != nil && o.Promotion.CodeID != uuid.Nil {
		id := o.Promotion.CodeID
		promotionID = &id
	}
	_, err = q.db.Exec(ctx, insertOrder,
		o.ID, o.Reference, string(o.State.Status()), state, o.Email, nullString(o.PaymentReference), promotionID,
		o.Totals.TotalTaxExcluded, o.Totals.TotalTaxIncluded, nullString(o.TrackingNumber), document, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", o.Reference, err)
		}
		return err
	}
	return nil
}

// UpdateOrderState persists a state change and tracking number.
func (q *Queries) UpdateOrderState(ctx context.Context, id uuid.UUID, st order.State, trackingNumber string, updatedAt time.Time) error {
	state, err := order.MarshalState(st)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, `UPDATE orders SET status = $2, state = $3, tracking_number = $4, updated_at = $5 WHERE id = $1`,
		id, string(st.Status()), state, nullString(trackingNumber), updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
