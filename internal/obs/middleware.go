package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// WrapWriter wraps w so middleware can read the status and size a handler wrote.
func WrapWriter(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

// StatusOf reports the status written through ww. Handlers that never call
// WriteHeader answered 200.
func StatusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// HTTPObs records request count, latency and response size per route.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	m := o.Metrics
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := WrapWriter(w, r)
		m.InFlight.Inc()
		start := time.Now()
		defer func() {
			m.InFlight.Dec()
			route := RoutePatternFromContext(r.Context())
			if route == "" {
				route = "unknown"
			}
			m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(StatusOf(ww))).Inc()
			m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
			m.RespBytes.WithLabelValues(route).Observe(float64(ww.BytesWritten()))
		}()
		next.ServeHTTP(ww, r)
	})
}

// RoutePatternMiddleware installs the RequestInfo holder. It must run ahead of
// HTTPObs and RequestLogger.
func RoutePatternMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestInfoFromContext(r.Context()) == nil {
			ctx, _ := WithRequestInfo(r.Context())
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
