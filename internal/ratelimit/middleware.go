package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// Rule caps a key at Max requests per Window. A zero rule admits everything.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) enabled() bool { return r.Window > 0 && r.Max > 0 }

func (r Rule) open(now time.Time) Decision {
	return Decision{Allowed: true, Limit: r.Max, Remaining: r.Max, ResetAt: now.Add(r.Window)}
}

// Decision is the limiter verdict for a single request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits or rejects one request for key under rule.
type Limiter interface {
	Take(ctx context.Context, key string, rule Rule) (Decision, error)
}

// ByClientIP keys requests on the caller address, scoped by name.
func ByClientIP(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return name + ":" + common.ClientIP(r)
	}
}

// Handler rejects requests over Rule with 429. Limiter failures let the request
// through and are reported to OnError.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	Rule    Rule
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Take(r.Context(), h.Key(r), h.Rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		writeHeaders(w.Header(), d)
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(wait, 0)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	})
}

func writeHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
