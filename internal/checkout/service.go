package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/events"
	"github.com/noah-isme/backend-atelier/internal/lock"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/payment"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

// Tx is the transactional view used while placing an order.
type Tx interface {
	events.EventStore
	GetPromotionCodeForUpdate(ctx context.Context, code string) (promotion.Code, error)
	// IncrementPromotionUsage bumps the usage counter unless the limit is reached,
	// in which case it returns promotion.ErrExhausted.
	IncrementPromotionUsage(ctx context.Context, id uuid.UUID) error
	InsertOrder(ctx context.Context, o order.Order) error
	GetOrderByPaymentReference(ctx context.Context, ref string) (order.Order, error)
}

// Store runs checkout writes in a single transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Service orchestrates pricing, promotion redemption and order creation.
type Service struct {
	Catalog     *catalog.Service
	Pricer      pricing.Pricer
	Promotions  *promotion.Service
	Shipping    shipping.Resolver
	Aggregator  order.Aggregator
	ExtraPrices order.ExtraPrices
	Store       Store
	Events      *events.Bus

	Payments   payment.Provider
	Sessions   SessionStore
	Locker     lock.Locker
	LockTTL    time.Duration
	Currency   string
	SuccessURL string
	CancelURL  string

	Now    func() time.Time
	Logger zerolog.Logger
}

type resolved struct {
	cart   pricing.Cart
	method shipping.Method
}

func (s *Service) resolve(ctx context.Context, req Request) (resolved, error) {
	items, err := s.Catalog.ResolveAll(ctx, req.Items)
	if err != nil {
		return resolved{}, err
	}
	cart, err := s.Pricer.PriceCart(items)
	if err != nil {
		return resolved{}, err
	}
	method, err := shipping.ParseMethod(req.Shipping)
	if err != nil {
		return resolved{}, err
	}
	return resolved{cart: cart, method: method}, nil
}

// price evaluates code against the cart, then prices shipping and extras and aggregates.
func (s *Service) price(r resolved, req Request, code *promotion.Code) (order.Breakdown, error) {
	var promo *promotion.Result
	if code != nil {
		res, err := s.Promotions.Evaluator.Evaluate(*code, r.cart)
		if err != nil {
			observePromotionErr(err)
			return order.Breakdown{}, err
		}
		obs.ObservePromotion("OK")
		promo = &res
	}
	ship, err := s.Shipping.Resolve(r.cart.Weight, r.method, promo != nil && promo.FreeShipping)
	if err != nil {
		return order.Breakdown{}, err
	}
	b, err := s.Aggregator.Aggregate(order.Input{
		Cart:           r.cart,
		Shipping:       ship,
		Extras:         order.PriceExtras(req.Extras, s.ExtraPrices, s.Pricer.Tax),
		Promotion:      promo,
		GiftCardAmount: req.GiftCardAmount,
	})
	if err != nil {
		s.Logger.Error().Err(err).Msg("order totals invariant violated")
		return order.Breakdown{}, err
	}
	if req.ExpectedTotal != nil {
		if err := b.Totals.Verify(*req.ExpectedTotal); err != nil {
			obs.ObserveTotalMismatch()
			s.Logger.Warn().
				Str("computed", b.Totals.TotalTaxIncluded.StringFixed(2)).
				Str("client", req.ExpectedTotal.StringFixed(2)).
				Msg("client total inconsistent with computed total")
			return order.Breakdown{}, err
		}
	}
	return b, nil
}

// Quote prices a checkout without persisting or redeeming anything.
func (s *Service) Quote(ctx context.Context, req Request) (Quote, error) {
	if err := req.validate(false); err != nil {
		return Quote{}, err
	}
	r, err := s.resolve(ctx, req)
	if err != nil {
		return Quote{}, err
	}
	var code *promotion.Code
	if promotion.NormalizeCode(req.PromotionCode) != "" {
		found, err := s.Promotions.Get(ctx, req.PromotionCode)
		if err != nil {
			observePromotionErr(err)
			return Quote{}, err
		}
		code = &found
	}
	b, err := s.price(r, req, code)
	if err != nil {
		return Quote{}, err
	}
	return quoteOf(b), nil
}

// PreviewPromotion evaluates a code against the priced items only.
func (s *Service) PreviewPromotion(ctx context.Context, req PreviewRequest) (Preview, error) {
	if err := validate.Struct(req); err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	items, err := s.Catalog.ResolveAll(ctx, req.Items)
	if err != nil {
		return Preview{}, err
	}
	cart, err := s.Pricer.PriceCart(items)
	if err != nil {
		return Preview{}, err
	}
	res, err := s.Promotions.Preview(ctx, req.Code, cart)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Promotion: res, Subtotal: cart.Subtotal.TaxExcluded}, nil
}

// Place creates an order in the given initial state. The promotion code row is locked,
// re-evaluated with its current usage and redeemed in the same transaction as the order
// insert, so a failure leaves neither an order nor a consumed redemption.
func (s *Service) Place(ctx context.Context, req Request, state order.State) (order.Order, error) {
	placed, _, err := s.place(ctx, req, state, "", "")
	return placed, err
}

func (s *Service) place(ctx context.Context, req Request, state order.State, reference, paymentRef string) (order.Order, bool, error) {
	if s == nil || s.Store == nil {
		return order.Order{}, false, errors.New("checkout service not configured")
	}
	if state == nil {
		return order.Order{}, false, fmt.Errorf("%w: missing order state", ErrInvalidRequest)
	}
	if err := req.validate(true); err != nil {
		return order.Order{}, false, err
	}
	r, err := s.resolve(ctx, req)
	if err != nil {
		return order.Order{}, false, err
	}
	normalized := promotion.NormalizeCode(req.PromotionCode)

	var (
		placed order.Order
		replay bool
		evs    []events.Event
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		if paymentRef != "" {
			existing, err := tx.GetOrderByPaymentReference(ctx, paymentRef)
			if err == nil {
				placed, replay = existing, true
				return nil
			}
			if !errors.Is(err, order.ErrNotFound) {
				return err
			}
		}
		var code *promotion.Code
		if normalized != "" {
			found, err := tx.GetPromotionCodeForUpdate(ctx, normalized)
			if err != nil {
				observePromotionErr(err)
				return err
			}
			code = &found
		}
		b, err := s.price(r, req, code)
		if err != nil {
			return err
		}
		if code != nil {
			if err := tx.IncrementPromotionUsage(ctx, code.ID); err != nil {
				return err
			}
		}

		o := order.New(b, state, strings.TrimSpace(req.Email), s.now())
		if reference != "" {
			o.Reference = reference
		}
		o.PaymentReference = paymentRef
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		ev, err := events.Record(ctx, tx, events.TopicOrderCreated, o.ID, order.NewEventPayload(o))
		if err != nil {
			return err
		}
		evs = append(evs, ev)
		if code != nil {
			ev, err := events.Record(ctx, tx, events.TopicPromotionRedeemed, code.ID, RedemptionPayload{
				CodeID:  code.ID,
				Code:    code.Code,
				OrderID: o.ID,
				Amount:  b.Totals.Discount.TaxExcluded,
				Used:    code.Used + 1,
			})
			if err != nil {
				return err
			}
			evs = append(evs, ev)
		}
		placed = o
		return nil
	})
	if err != nil {
		return order.Order{}, false, err
	}
	if replay {
		return placed, true, nil
	}
	if pubErr := s.Events.Publish(ctx, evs...); pubErr != nil {
		s.Logger.Warn().Err(pubErr).Str("order_id", placed.ID.String()).Msg("checkout event fan-out failed")
	}
	obs.ObserveOrder(string(placed.State.Status()))
	s.Logger.Info().
		Str("order_id", placed.ID.String()).
		Str("reference", placed.Reference).
		Str("status", string(placed.State.Status())).
		Str("total", placed.Totals.TotalTaxIncluded.StringFixed(2)).
		Msg("order placed")
	return placed, false, nil
}

// RedemptionPayload is recorded when an order consumes a promotion code.
type RedemptionPayload struct {
	CodeID  uuid.UUID       `json:"codeId"`
	Code    string          `json:"code"`
	OrderID uuid.UUID       `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Used    int             `json:"used"`
}

// BankTransfer places an order awaiting a bank transfer.
func (s *Service) BankTransfer(ctx context.Context, req Request) (order.Order, error) {
	return s.Place(ctx, req, order.WaitingBankTransfer{})
}

// StartCardCheckout quotes the request and opens a hosted card payment page. The order is
// only created once the provider confirms payment.
func (s *Service) StartCardCheckout(ctx context.Context, req Request) (CardSession, error) {
	if s.Payments == nil {
		return CardSession{}, ErrPaymentsDisabled
	}
	if err := req.validate(true); err != nil {
		return CardSession{}, err
	}
	q, err := s.Quote(ctx, req)
	if err != nil {
		return CardSession{}, err
	}
	now := s.now()
	draft := order.New(order.Breakdown{
		Items:     q.Items,
		Shipping:  q.Shipping,
		Extras:    q.Extras,
		Promotion: q.Promotion,
		Totals:    q.Totals,
	}, order.Draft{}, req.Email, now)
	lines, total := order.PaymentLines(draft)

	// The amount charged becomes the expected total when the order is placed.
	req.ExpectedTotal = &total
	sess, err := s.Payments.CreateSession(ctx, payment.SessionRequest{
		Reference:  draft.Reference,
		Email:      req.Email,
		Currency:   s.Currency,
		Lines:      lines,
		Total:      total,
		SuccessURL: s.SuccessURL,
		CancelURL:  s.CancelURL,
		Metadata:   map[string]string{"reference": draft.Reference},
	})
	if err != nil {
		return CardSession{}, err
	}
	if err := s.Sessions.Save(ctx, sess.ID, Snapshot{Request: req, Reference: draft.Reference, CreatedAt: now}); err != nil {
		return CardSession{}, fmt.Errorf("store checkout snapshot: %w", err)
	}
	s.Logger.Info().Str("session_id", sess.ID).Str("reference", draft.Reference).Msg("card checkout started")
	return CardSession{SessionID: sess.ID, URL: sess.URL, Reference: draft.Reference, Totals: q.Totals}, nil
}

// HandlePaymentWebhook verifies a provider notification and places the paid order for a
// completed session. Replays of the same session return the existing order.
func (s *Service) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	if s.Payments == nil {
		return WebhookOutcome{}, ErrPaymentsDisabled
	}
	ev, err := s.Payments.VerifyWebhook(payload, signature)
	if err != nil {
		return WebhookOutcome{}, err
	}
	switch ev.Type {
	case payment.EventSessionExpired:
		if err := s.Sessions.Delete(ctx, ev.SessionID); err != nil {
			s.Logger.Warn().Err(err).Str("session_id", ev.SessionID).Msg("drop expired checkout snapshot failed")
		}
		return WebhookOutcome{Result: OutcomeExpired}, nil
	case payment.EventSessionCompleted:
	default:
		return WebhookOutcome{Result: OutcomeIgnored}, nil
	}
	if !ev.Paid {
		return WebhookOutcome{Result: OutcomeIgnored}, nil
	}

	var out WebhookOutcome
	err = s.Locker.WithLock(ctx, "checkout:lock:"+ev.SessionID, s.lockTTL(), func(ctx context.Context) error {
		snap, err := s.Sessions.Load(ctx, ev.SessionID)
		if errors.Is(err, ErrSessionNotFound) {
			existing, findErr := s.findByPaymentReference(ctx, ev.PaymentReference)
			if findErr != nil {
				if errors.Is(findErr, order.ErrNotFound) {
					return err
				}
				return findErr
			}
			out = WebhookOutcome{Result: OutcomeReplay, Order: &existing}
			return nil
		}
		if err != nil {
			return err
		}
		req := snap.Request
		charged := ev.AmountTotal
		req.ExpectedTotal = &charged
		placed, replay, err := s.place(ctx, req, order.NewPaid(order.PaymentCard, s.now()), snap.Reference, ev.PaymentReference)
		if err != nil {
			if reason := paidRejection(err); reason != "" {
				obs.ObservePaidUnplaced(reason)
				s.Logger.Error().Err(err).
					Str("session_id", ev.SessionID).
					Str("payment_reference", ev.PaymentReference).
					Str("reference", snap.Reference).
					Str("amount", charged.StringFixed(2)).
					Str("reason", reason).
					Msg("captured payment has no order, refund required")
				return err
			}
			s.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("reference", snap.Reference).Msg("paid checkout could not be placed")
			return err
		}
		if delErr := s.Sessions.Delete(ctx, ev.SessionID); delErr != nil {
			s.Logger.Warn().Err(delErr).Str("session_id", ev.SessionID).Msg("drop checkout snapshot failed")
		}
		out = WebhookOutcome{Result: OutcomeCreated, Order: &placed}
		if replay {
			out.Result = OutcomeReplay
		}
		return nil
	})
	if err != nil {
		return WebhookOutcome{}, err
	}
	return out, nil
}

func (s *Service) findByPaymentReference(ctx context.Context, ref string) (order.Order, error) {
	var found order.Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		found, err = tx.GetOrderByPaymentReference(ctx, ref)
		return err
	})
	return found, err
}

func observePromotionErr(err error) {
	if kind := promotion.Kind(err); kind != "" {
		obs.ObservePromotion(kind)
	}
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 30 * time.Second
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// paidRejection names why a captured card payment was refused an order. Storage
// and lock failures return "" since a webhook retry can still succeed.
func paidRejection(err error) string {
	switch {
	case errors.Is(err, promotion.ErrExpired), errors.Is(err, promotion.ErrExhausted),
		errors.Is(err, promotion.ErrNotFound), errors.Is(err, promotion.ErrBelowMinimum):
		return "promotion"
	case errors.Is(err, catalog.ErrArticleNotFound), errors.Is(err, catalog.ErrInvalidItem):
		return "catalog"
	case errors.Is(err, order.ErrInconsistentTotal):
		return "total_mismatch"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	}
	return ""
}
