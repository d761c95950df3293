package promotion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

// Repository captures the storage operations used by the promotion service.
type Repository interface {
	GetPromotionCode(ctx context.Context, code string) (Code, error)
	CreatePromotionCode(ctx context.Context, code Code) (Code, error)
	ListPromotionCodes(ctx context.Context) ([]Code, error)
	DeletePromotionCode(ctx context.Context, code string) error
}

// Service evaluates and manages promotion codes.
type Service struct {
	Repo      Repository
	Evaluator Evaluator
	Logger    zerolog.Logger
}

// Preview performs a dry-run evaluation for the given cart. Nothing is mutated.
func (s *Service) Preview(ctx context.Context, code string, cart pricing.Cart) (Result, error) {
	if s == nil || s.Repo == nil {
		return Result{}, errors.New("promotion service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Result{}, ErrNotFound
	}
	found, err := s.Repo.GetPromotionCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObservePromotion(Kind(err))
		}
		return Result{}, err
	}
	res, err := s.Evaluator.Evaluate(found, cart)
	if err != nil {
		obs.ObservePromotion(Kind(err))
		return Result{}, err
	}
	obs.ObservePromotion("OK")
	return res, nil
}

// Create parses and stores a new promotion code.
func (s *Service) Create(ctx context.Context, def Definition) (Code, error) {
	code, err := Parse(def)
	if err != nil {
		return Code{}, err
	}
	created, err := s.Repo.CreatePromotionCode(ctx, code)
	if err != nil {
		return Code{}, fmt.Errorf("create promotion code: %w", err)
	}
	s.Logger.Info().Str("code", created.Code).Str("type", string(created.Discount.Type())).Msg("promotion code created")
	return created, nil
}

// List returns every promotion code.
func (s *Service) List(ctx context.Context) ([]Code, error) {
	return s.Repo.ListPromotionCodes(ctx)
}

// Get returns a single promotion code.
func (s *Service) Get(ctx context.Context, code string) (Code, error) {
	return s.Repo.GetPromotionCode(ctx, NormalizeCode(code))
}

// Delete removes an unused promotion code. Redeemed codes are kept for order history.
func (s *Service) Delete(ctx context.Context, code string) error {
	normalized := NormalizeCode(code)
	found, err := s.Repo.GetPromotionCode(ctx, normalized)
	if err != nil {
		return err
	}
	if found.Used > 0 {
		return ErrInUse
	}
	if err := s.Repo.DeletePromotionCode(ctx, normalized); err != nil {
		return err
	}
	s.Logger.Info().Str("code", normalized).Msg("promotion code deleted")
	return nil
}
