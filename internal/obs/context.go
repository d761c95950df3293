package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// RequestInfo collects facts learned while a request travels down the handler chain so
// that outer middleware (metrics, access logs) can read them once the handler returns.
type RequestInfo struct {
	Route string
	Admin string
}

type requestInfoKey struct{}

// WithRequestInfo attaches an empty RequestInfo to ctx.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// RequestInfoFromContext returns the RequestInfo of ctx, or nil.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// WithRoutePattern records pattern as the request route.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	info := RequestInfoFromContext(ctx)
	if info == nil {
		ctx, info = WithRequestInfo(ctx)
	}
	info.Route = pattern
	return ctx
}

// RoutePatternFromContext returns the recorded route, falling back to chi's matched pattern.
func RoutePatternFromContext(ctx context.Context) string {
	if info := RequestInfoFromContext(ctx); info != nil && info.Route != "" {
		return info.Route
	}
	if ctx == nil {
		return ""
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// NoteAdmin records the authenticated admin on the request, if the request carries a RequestInfo.
func NoteAdmin(ctx context.Context, subject string) {
	if info := RequestInfoFromContext(ctx); info != nil {
		info.Admin = subject
	}
}
