package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
)

const promotionColumns = `id, code, type, discount, min_amount, until, usage_limit, category, article_id, used, created_at`

func scanPromotion(row pgx.Row) (promotion.Code, error) {
	var (
		id         uuid.UUID
		def        promotion.Definition
		kind       string
		minAmount  *decimal.Decimal
		until      *time.Time
		usageLimit *int32
		category   *string
		articleID  *string
		used       int32
		createdAt  time.Time
	)
	if err := row.Scan(&id, &def.Code, &kind, &def.Discount, &minAmount, &until, &usageLimit, &category, &articleID, &used, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.Code{}, promotion.ErrNotFound
		}
		return promotion.Code{}, err
	}
	def.Type = promotion.Type(kind)
	def.MinAmount = minAmount
	def.Until = until
	if usageLimit != nil {
		limit := int(*usageLimit)
		def.UsageLimit = &limit
	}
	if category != nil {
		c := pricing.Kind(*category)
		def.Category = &c
	}
	def.ArticleID = articleID
	code, err := promotion.Parse(def)
	if err != nil {
		return promotion.Code{}, fmt.Errorf("stored promotion code %s: %w", def.Code, err)
	}
	code.ID = id
	code.Used = int(used)
	code.CreatedAt = createdAt
	return code, nil
}

// GetPromotionCode loads a code by its normalized value.
func (q *Queries) GetPromotionCode(ctx context.Context, code string) (promotion.Code, error) {
	return scanPromotion(q.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotion_codes WHERE code = $1`, code))
}

// GetPromotionCodeForUpdate loads a code and locks its row until the transaction ends.
func (q *Queries) GetPromotionCodeForUpdate(ctx context.Context, code string) (promotion.Code, error) {
	return scanPromotion(q.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotion_codes WHERE code = $1 FOR UPDATE`, code))
}

// ListPromotionCodes returns every code, newest first.
func (q *Queries) ListPromotionCodes(ctx context.Context) ([]promotion.Code, error) {
	rows, err := q.db.Query(ctx, `SELECT `+promotionColumns+` FROM promotion_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []promotion.Code
	for rows.Next() {
		code, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

const insertPromotion = `INSERT INTO promotion_codes (id, code, type, discount, min_amount, until, usage_limit, category, article_id, used)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
RETURNING ` + promotionColumns

// CreatePromotionCode inserts a new code. A duplicate code fails with promotion.ErrDuplicate.
func (q *Queries) CreatePromotionCode(ctx context.Context, code promotion.Code) (promotion.Code, error) {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	def := code.Definition()
	var category *string
	if def.Category != nil {
		c := string(*def.Category)
		category = &c
	}
	created, err := scanPromotion(q.db.QueryRow(ctx, insertPromotion,
		code.ID, def.Code, string(def.Type), def.Discount, def.MinAmount, def.Until, def.UsageLimit, category, def.ArticleID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.Code{}, promotion.ErrDuplicate
		}
		return promotion.Code{}, err
	}
	return created, nil
}

// IncrementPromotionUsage consumes one redemption unless the limit is reached.
func (q *Queries) IncrementPromotionUsage(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE promotion_codes SET used = used + 1
WHERE id = $1 AND (usage_limit IS NULL OR used < usage_limit)`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrExhausted
	}
	return nil
}

// DeletePromotionCode removes a code that no order references.
func (q *Queries) DeletePromotionCode(ctx context.Context, code string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM promotion_codes WHERE code = $1 AND used = 0`, code)
	if err != nil {
		if isForeignKeyViolation(err) {
			return promotion.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.GetPromotionCode(ctx, code); err != nil {
			return err
		}
		return promotion.ErrInUse
	}
	return nil
}
