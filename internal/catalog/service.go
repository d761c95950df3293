package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/pricing"
)

var (
	// ErrArticleNotFound is returned when an item references an unknown or disabled article.
	ErrArticleNotFound = errors.New("article not found")
	// ErrInvalidItem is returned when an item input does not match its article.
	ErrInvalidItem = errors.New("invalid cart item")
)

// CustomizationInput is a customer selection for an article option.
type CustomizationInput struct {
	OptionID string `json:"optionId" validate:"required"`
	Value    string `json:"value" validate:"max=200"`
}

// ItemInput is a cart line as submitted by the storefront.
type ItemInput struct {
	Type           pricing.Kind         `json:"type" validate:"required,oneof=customized inStock giftCard"`
	ArticleID      string               `json:"articleId" validate:"required_unless=Type giftCard"`
	Quantity       int                  `json:"quantity" validate:"required,min=1,max=100"`
	Customizations []CustomizationInput `json:"customizations,omitempty" validate:"dive"`
	StockID        string               `json:"stockId,omitempty"`
	Amount         *decimal.Decimal     `json:"amount,omitempty"`
	Recipient      string               `json:"recipient,omitempty" validate:"omitempty,email"`
}

// Store loads articles from persistent storage.
type Store interface {
	GetArticle(ctx context.Context, id string) (Article, error)
}

// Service resolves storefront items against the catalog.
type Service struct {
	Store       Store
	Cache       *Cache
	GiftCardMin decimal.Decimal
	GiftCardMax decimal.Decimal
	Logger      zerolog.Logger
}

var validate = validator.New()

// Article loads an article, serving it from cache when possible.
func (s *Service) Article(ctx context.Context, id string) (Article, error) {
	id = strings.TrimSpace(id)
	cached, ok, err := s.Cache.Load(ctx, id)
	if err != nil {
		s.Logger.Warn().Err(err).Str("article_id", id).Msg("article cache read failed")
	} else if ok {
		return cached, nil
	}
	article, err := s.Store.GetArticle(ctx, id)
	if err != nil {
		return Article{}, err
	}
	if err := s.Cache.Save(ctx, article); err != nil {
		s.Logger.Warn().Err(err).Str("article_id", id).Msg("article cache write failed")
	}
	return article, nil
}

// Invalidate drops cached articles.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	return s.Cache.Forget(ctx, ids...)
}

// ResolveAll resolves every item, reporting the index of the first failure.
func (s *Service) ResolveAll(ctx context.Context, inputs []ItemInput) ([]pricing.CartItem, error) {
	items := make([]pricing.CartItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := s.Resolve(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Resolve builds the cart item variant for in, with customization surcharges resolved.
func (s *Service) Resolve(ctx context.Context, in ItemInput) (pricing.CartItem, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if in.Type == pricing.KindGiftCard {
		return s.giftCard(in)
	}
	article, err := s.Article(ctx, in.ArticleID)
	if err != nil {
		return nil, err
	}
	if !article.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, in.ArticleID)
	}
	if article.Kind != in.Type {
		return nil, fmt.Errorf("%w: article %s is sold as %s", ErrInvalidItem, article.ID, article.Kind)
	}
	line := pricing.Line{
		ArticleID:       article.ID,
		Description:     article.Name,
		Quantity:        in.Quantity,
		UnitTaxExcluded: article.UnitPrice,
		UnitWeight:      article.UnitWeight,
	}
	switch article.Kind {
	case pricing.KindInStock:
		if len(in.Customizations) > 0 {
			return nil, fmt.Errorf("%w: in-stock articles cannot be customized", ErrInvalidItem)
		}
		return pricing.InStockItem{Line: line, StockID: in.StockID}, nil
	case pricing.KindCustomized:
		customizations, err := resolveCustomizations(article, in.Customizations)
		if err != nil {
			return nil, err
		}
		return pricing.CustomizedItem{Line: line, Customizations: customizations}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported article type %q", ErrInvalidItem, article.Kind)
	}
}

func (s *Service) giftCard(in ItemInput) (pricing.CartItem, error) {
	if in.Amount == nil {
		return nil, fmt.Errorf("%w: gift card amount is required", ErrInvalidItem)
	}
	amount := *in.Amount
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: gift card amount has more than 2 decimals", ErrInvalidItem)
	}
	if amount.LessThan(s.GiftCardMin) || (s.GiftCardMax.IsPositive() && amount.GreaterThan(s.GiftCardMax)) || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: gift card amount must be between %s and %s", ErrInvalidItem, s.GiftCardMin.StringFixed(2), s.GiftCardMax.StringFixed(2))
	}
	return pricing.GiftCardItem{
		Line: pricing.Line{
			Description:     "Gift card " + amount.StringFixed(2),
			Quantity:        in.Quantity,
			UnitTaxExcluded: amount,
		},
		Recipient: in.Recipient,
	}, nil
}

func resolveCustomizations(article Article, inputs []CustomizationInput) ([]pricing.Customization, error) {
	seen := make(map[string]bool, len(inputs))
	out := make([]pricing.Customization, 0, len(inputs))
	for _, in := range inputs {
		opt, ok := article.Options[in.OptionID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown option %q on %s", ErrInvalidItem, in.OptionID, article.ID)
		}
		if seen[in.OptionID] {
			return nil, fmt.Errorf("%w: option %q selected twice", ErrInvalidItem, in.OptionID)
		}
		seen[in.OptionID] = true

		c := pricing.Customization{Kind: opt.Kind, OptionID: opt.ID, Value: in.Value, Surcharge: decimal.Zero}
		switch opt.Kind {
		case pricing.CustomizationFabric:
			surcharge, ok := opt.Choices[in.Value]
			if !ok {
				return nil, fmt.Errorf("%w: fabric %q not offered for %s", ErrInvalidItem, in.Value, opt.ID)
			}
			c.Surcharge = surcharge
		case pricing.CustomizationText:
			if strings.TrimSpace(in.Value) == "" {
				continue
			}
			c.Surcharge = opt.Surcharge
		case pricing.CustomizationBoolean:
			enabled, err := strconv.ParseBool(in.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: option %q expects true or false", ErrInvalidItem, opt.ID)
			}
			if !enabled {
				continue
			}
			c.Surcharge = opt.Surcharge
		default:
			return nil, fmt.Errorf("%w: option %q has unsupported type %q", ErrInvalidItem, opt.ID, opt.Kind)
		}
		out = append(out, c)
	}
	for id, opt := range article.Options {
		if opt.Kind == pricing.CustomizationFabric && !seen[id] {
			return nil, fmt.Errorf("%w: fabric option %q is required", ErrInvalidItem, id)
		}
	}
	return out, nil
}
