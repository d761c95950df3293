package obs

import (
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// NewLogger builds the process logger. format is "json" or "console"; an unknown
// level falls back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return newLogger(os.Stdout, format)
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if f := strings.ToLower(strings.TrimSpace(format)); f == "console" || f == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "atelier").Logger()
}

// RequestLogger emits one "http_request" entry per request and puts Logger on
// the request context for hlog.FromRequest. 5xx responses log at error and 4xx
// at warn. Requests on Quiet routes log at debug.
type RequestLogger struct {
	Logger zerolog.Logger
	Quiet  []string
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	access := hlog.AccessHandler(l.record)
	return hlog.NewHandler(l.Logger)(access(next))
}

func (l RequestLogger) record(r *http.Request, status, size int, elapsed time.Duration) {
	ctx := r.Context()
	route := RoutePatternFromContext(ctx)
	if route == "" {
		route = r.URL.Path
	}

	log := hlog.FromRequest(r)
	var evt *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		evt = log.Error()
	case status >= http.StatusBadRequest:
		evt = log.Warn()
	case slices.Contains(l.Quiet, route):
		evt = log.Debug()
	default:
		evt = log.Info()
	}
	if evt == nil {
		return
	}

	evt = evt.Str("method", r.Method).
		Str("route", route).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("bytes", size).
		Int64("duration_ms", elapsed.Milliseconds()).
		Str("request_id", middleware.GetReqID(ctx))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	if admin := adminFor(r); admin != "" {
		evt = evt.Str("admin", admin)
	}
	if ip := common.ClientIP(r); ip != "" {
		evt = evt.Str("client_ip", ip)
	}
	if ua := r.UserAgent(); ua != "" {
		evt = evt.Str("user_agent", ua)
	}
	evt.Msg("http_request")
}

// adminFor reads the admin subject from the request or, when the admin check
// ran on a derived request, from the shared RequestInfo.
func adminFor(r *http.Request) string {
	if admin, ok := common.AdminSubject(r.Context()); ok {
		return strings.TrimSpace(admin)
	}
	if info := RequestInfoFromContext(r.Context()); info != nil {
		return strings.TrimSpace(info.Admin)
	}
	return ""
}
