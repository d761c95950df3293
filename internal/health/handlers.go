package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-atelier/internal/common"
)

var draining atomic.Bool

// SetReady flips the readiness flag; the API clears it while draining on shutdown.
func SetReady(v bool) { draining.Store(!v) }

// Probe checks one dependency within Timeout.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Postgres probes the database pool.
func Postgres(db Pinger) Probe {
	return Probe{Name: "db", Timeout: 500 * time.Millisecond, Check: func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		return db.Ping(ctx)
	}}
}

// Redis probes the shared Redis client.
func Redis(rdb *redis.Client) Probe {
	return Probe{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}}
}

func (p Probe) run(ctx context.Context) string {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := p.Check(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// Report is the readiness body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Probes []Probe
}

func (Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and answers 503 unless all pass.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "shutting_down"})
		return
	}
	if len(h.Probes) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "no_probes"})
		return
	}

	results := make([]string, len(h.Probes))
	var g errgroup.Group
	for i, p := range h.Probes {
		g.Go(func() error {
			results[i] = p.run(r.Context())
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Checks: make(map[string]string, len(h.Probes))}
	code := http.StatusOK
	for i, p := range h.Probes {
		rep.Checks[p.Name] = results[i]
		if results[i] != "ok" {
			rep.Status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, rep)
}
