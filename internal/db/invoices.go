package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-atelier/internal/order"
)

// ErrInvoiceNotFound is returned when no invoice was generated for an order yet.
var ErrInvoiceNotFound = errors.New("invoice not found")

// UpsertInvoice stores the invoice snapshot of an order, replacing a previous one.
func (q *Queries) UpsertInvoice(ctx context.Context, inv order.Invoice) error {
	document, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `INSERT INTO order_invoices (order_id, number, document, issued_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		inv.OrderID, inv.Number, document, inv.IssuedAt)
	return err
}

// GetInvoice returns the stored invoice of an order.
func (q *Queries) GetInvoice(ctx context.Context, orderID uuid.UUID) (order.Invoice, error) {
	var raw []byte
	if err := q.db.QueryRow(ctx, `SELECT document FROM order_invoices WHERE order_id = $1`, orderID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Invoice{}, ErrInvoiceNotFound
		}
		return order.Invoice{}, err
	}
	var inv order.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return order.Invoice{}, err
	}
	return inv, nil
}
