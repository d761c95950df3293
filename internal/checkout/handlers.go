package checkout

import (
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/backend-atelier/internal/catalog"
	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/obs"
	"github.com/noah-isme/backend-atelier/internal/order"
	"github.com/noah-isme/backend-atelier/internal/payment"
	"github.com/noah-isme/backend-atelier/internal/pricing"
	"github.com/noah-isme/backend-atelier/internal/promotion"
	"github.com/noah-isme/backend-atelier/internal/resilience"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

const maxWebhookBytes = int64(65536)

// Handler exposes the checkout endpoints.
type Handler struct {
	Svc *Service
}

// Quote prices a checkout.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	q, err := h.Svc.Quote(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// Preview evaluates a promotion code without redeeming it.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.Svc.PreviewPromotion(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, p)
}

// CardSession opens a hosted card payment page.
func (h *Handler) CardSession(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.StartCardCheckout(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, sess)
}

// BankTransfer places an order awaiting a bank transfer.
func (h *Handler) BankTransfer(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	o, err := h.Svc.BankTransfer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, o)
}

// StripeWebhook handles Stripe checkout notifications.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		obs.ObserveWebhook(payment.ProviderStripe, "invalid_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	out, err := h.Svc.HandlePaymentWebhook(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			obs.ObserveWebhook(payment.ProviderStripe, "invalid_signature")
			common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		obs.ObserveWebhook(payment.ProviderStripe, "error")
		writeError(w, err)
		return
	}
	obs.ObserveWebhook(payment.ProviderStripe, out.Result)
	common.Data(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, err error) {
	if kind := promotion.Kind(err); kind != "" {
		common.JSONError(w, http.StatusUnprocessableEntity, kind, err.Error(), nil)
		return
	}
	errorRules.Write(w, err, "checkout failed")
}

var errorRules = common.ErrorRules{
	{Target: order.ErrInconsistentTotal, Status: http.StatusConflict, Code: "INCONSISTENT_TOTAL"},
	{Target: ErrInvalidRequest, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: catalog.ErrInvalidItem, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: pricing.ErrInvalidItem, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: pricing.ErrEmptyCart, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: shipping.ErrInvalidMethod, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: order.ErrInvalidGiftCardAmount, Status: http.StatusBadRequest, Code: "BAD_REQUEST"},
	{Target: catalog.ErrArticleNotFound, Status: http.StatusUnprocessableEntity, Code: "ARTICLE_NOT_FOUND"},
	{Target: shipping.ErrNoRate, Status: http.StatusUnprocessableEntity, Code: "NO_SHIPPING_RATE"},
	{Target: ErrPaymentsDisabled, Status: http.StatusServiceUnavailable, Code: "PAYMENTS_UNAVAILABLE", Message: "card payments are unavailable"},
	{Target: resilience.ErrOpenCircuit, Status: http.StatusServiceUnavailable, Code: "PAYMENTS_UNAVAILABLE", Message: "card payments are unavailable"},
	{Target: ErrSessionNotFound, Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND"},
}
