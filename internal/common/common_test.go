package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdemReplaysCompletedResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls atomic.Int32
	h := Idem{R: rdb, TTL: time.Hour}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		Data(w, http.StatusCreated, map[string]any{"reference": fmt.Sprintf("ORD-%d", n)})
	}))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := send("/api/v1/checkout/bank-transfer")
	require.Equal(t, http.StatusCreated, first.Code)
	second := send("/api/v1/checkout/bank-transfer")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, calls.Load())

	// same key on another endpoint is a different request
	other := send("/api/v1/checkout/session")
	require.Equal(t, http.StatusCreated, other.Code)
	require.EqualValues(t, 2, calls.Load())
}

func TestIdemInProgressAndServerErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := http.StatusInternalServerError
	h := Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		JSONError(w, status, "X", "x", nil)
	}))
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/p", nil)
		r.Header.Set("Idempotency-Key", "k")
		return r
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req())
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	// the failed attempt released the key
	status = http.StatusConflict
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req())
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Empty(t, rr.Header().Get("Idempotent-Replayed"))

	key := idemKey(req(), "other")
	require.NoError(t, mr.Set(key, idemPending))
	r := req()
	r.Header.Set("Idempotency-Key", "other")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENCY_IN_PROGRESS")
}

var errMissing = errors.New("missing")

func TestErrorRules(t *testing.T) {
	rules := ErrorRules{{Target: errMissing, Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "thing not found"}}

	rr := httptest.NewRecorder()
	rules.Write(rr, fmt.Errorf("load: %w", errMissing), "failed")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "thing not found")

	rr = httptest.NewRecorder()
	rules.Write(rr, NewAppError("BAD", "bad input", http.StatusBadRequest, nil), "failed")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	rules.Write(rr, errors.New("boom"), "failed")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct{ A int }
	rr := httptest.NewRecorder()
	require.True(t, DecodeJSON(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A":1}`)), &dst))
	require.Equal(t, 1, dst.A)

	rr = httptest.NewRecorder()
	require.False(t, DecodeJSON(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A":1}{"A":2}`)), &dst))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	require.False(t, DecodeJSON(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``)), &dst))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPaginationAndClientIP(t *testing.T) {
	p := ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil), 50, 200)
	require.Equal(t, 3, p.Page)
	require.Equal(t, 200, p.PerPage)
	require.Equal(t, 400, p.Offset())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.4:1234"
	require.Equal(t, "192.0.2.4", ClientIP(r))
	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(r))
}
