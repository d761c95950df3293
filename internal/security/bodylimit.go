package security

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// BodyLimit caps request bodies at limit bytes. A Content-Length over the cap is
// answered with 413 up front; streamed bodies fail inside the decoder, which
// common.DecodeJSON maps to the same 413. A non-positive limit disables the cap.
func BodyLimit(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	capped := middleware.RequestSize(limit)
	return func(next http.Handler) http.Handler {
		inner := capped(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
				return
			}
			inner.ServeHTTP(w, r)
		})
	}
}
