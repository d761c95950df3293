package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

const getArticle = `SELECT id, name, kind, unit_price, unit_weight, options, enabled
FROM articles WHERE id = $1`

// GetArticle loads one article.
func (q *Queries) GetArticle(ctx context.Context, id string) (catalog.Article, error) {
	var (
		a       catalog.Article
		kind    string
		options []byte
	)
	err := q.db.QueryRow(ctx, getArticle, id).Scan(&a.ID, &a.Name, &kind, &a.UnitPrice, &a.UnitWeight, &options, &a.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Article{}, fmt.Errorf("%w: %s", catalog.ErrArticleNotFound, id)
		}
		return catalog.Article{}, err
	}
	a.Kind = pricing.Kind(kind)
	if len(options) > 0 {
		if err := json.Unmarshal(options, &a.Options); err != nil {
			return catalog.Article{}, fmt.Errorf("decode options of %s: %w", id, err)
		}
	}
	return a, nil
}

const upsertArticle = `INSERT INTO articles (id, name, kind, unit_price, unit_weight, options, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    unit_price = EXCLUDED.unit_price,
    unit_weight = EXCLUDED.unit_weight,
    options = EXCLUDED.options,
    enabled = EXCLUDED.enabled,
    updated_at = now()`

// UpsertArticle creates or replaces an article.
func (q *Queries) UpsertArticle(ctx context.Context, a catalog.Article) error {
	options, err := json.Marshal(a.Options)
	if err != nil {
		return err
	}
	if a.Options == nil {
		options = []byte("{}")
	}
	_, err = q.db.Exec(ctx, upsertArticle, a.ID, a.Name, string(a.Kind), a.UnitPrice, a.UnitWeight, options, a.Enabled)
	return err
}
