package audit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-atelier/internal/obs"
)

// HTTPRecorder writes an audit entry after each mutating admin request.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// HTTPConfig names the action and the resource a route acts on. ResourceIDParam
// is the chi URL parameter holding the resource ID.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Middleware audits the wrapped route. Failed requests are recorded with their
// status so denied or invalid admin actions stay visible.
func (h HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !h.Service.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ww := obs.WrapWriter(w, r)
			start := time.Now()
			next.ServeHTTP(ww, r)

			var id string
			if cfg.ResourceIDParam != "" {
				id = chi.URLParam(r, cfg.ResourceIDParam)
			}
			meta := map[string]any{"durationMs": time.Since(start).Milliseconds()}
			if q := r.URL.RawQuery; q != "" {
				meta["query"] = q
			}
			err := h.Service.Record(r.Context(), r, obs.StatusOf(ww), cfg.Action, cfg.ResourceType, id, meta)
			if err != nil && h.OnError != nil {
				h.OnError(err)
			}
		})
	}
}
