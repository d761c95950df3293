package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-atelier/internal/checkout"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/order"
)

// NewPool opens a pool with NUMERIC mapped to decimal.Decimal and queries traced.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.ConnConfig.Tracer = obs.PGXTracer{}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// Store runs queries against the pool and hands transactional views to services.
type Store struct {
	*Queries
	Pool *pgxpool.Pool
}

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), Pool: pool}
}

func (s *Store) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Orders adapts the store to order.Store.
func (s *Store) Orders() OrderStore { return OrderStore{s} }

// Checkout adapts the store to checkout.Store.
func (s *Store) Checkout() CheckoutStore { return CheckoutStore{s} }

// OrderStore implements order.Store.
type OrderStore struct{ s *Store }

// GetOrder loads an order outside any transaction.
func (o OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return o.s.GetOrder(ctx, id)
}

// InTx runs fn in a transaction.
func (o OrderStore) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return o.s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

// CheckoutStore implements checkout.Store.
type CheckoutStore struct{ s *Store }

// InTx runs fn in a transaction.
func (c CheckoutStore) InTx(ctx context.Context, fn func(checkout.Tx) error) error {
	return c.s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

var (
	_ order.Store    = OrderStore{}
	_ checkout.Store = CheckoutStore{}
	_ order.Tx       = (*Queries)(nil)
	_ checkout.Tx    = (*Queries)(nil)
)
