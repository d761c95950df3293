package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/obs"
)

type memStore struct {
	entries []Entry
}

func (m *memStore) InsertAuditEntry(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) ListAuditEntries(_ context.Context, limit, offset int) ([]Entry, error) {
	if offset >= len(m.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.entries) {
		end = len(m.entries)
	}
	return m.entries[offset:end], nil
}

func TestServiceRecord(t *testing.T) {
	store := &memStore{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := Service{Store: store, Enabled: true, Now: func() time.Time { return fixed }}

	req := httptest.NewRequest(http.MethodDelete, "https://api.test/api/v1/admin/promotion-codes/SUMMER", nil)
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithAdminSubject(req.Context(), "ops@atelier.test")
	ctx = obs.WithRoutePattern(ctx, "/api/v1/admin/promotion-codes/{code}")
	req = req.WithContext(ctx)

	require.NoError(t, svc.Record(req.Context(), req, http.StatusNoContent, "", "", "SUMMER", nil))
	require.Len(t, store.entries, 1)
	e := store.entries[0]
	require.Equal(t, "ops@atelier.test", e.Admin)
	require.Equal(t, "DELETE /api/v1/admin/promotion-codes/{code}", e.Action)
	require.Equal(t, "admin.promotion-codes", e.ResourceType)
	require.Equal(t, "SUMMER", e.ResourceID)
	require.Equal(t, "10.0.0.2", e.IP)
	require.Equal(t, http.StatusNoContent, e.Status)
	require.Equal(t, fixed, e.CreatedAt)
}

func TestServiceDisabled(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/1/mark-paid", nil)
	require.NoError(t, svc.Record(req.Context(), req, http.StatusOK, "", "", "", nil))
	require.Empty(t, store.entries)
}

func TestMiddlewareRecordsMutationsOnly(t *testing.T) {
	store := &memStore{}
	rec := HTTPRecorder{Service: Service{Store: store, Enabled: true}}

	r := chi.NewRouter()
	r.Use(obs.RoutePatternMiddleware)
	r.With(rec.Middleware(HTTPConfig{Action: "order.mark_paid", ResourceType: "order", ResourceIDParam: "id"})).
		Post("/api/v1/admin/orders/{id}/mark-paid", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	r.With(rec.Middleware(HTTPConfig{})).Get("/api/v1/admin/promotion-codes", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/admin/promotion-codes", nil))
	require.Empty(t, store.entries)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/42/mark-paid", nil))
	require.Len(t, store.entries, 1)
	require.Equal(t, "order.mark_paid", store.entries[0].Action)
	require.Equal(t, "order", store.entries[0].ResourceType)
	require.Equal(t, "42", store.entries[0].ResourceID)
}

func TestHandlerList(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 3; i++ {
		store.entries = append(store.entries, Entry{Action: "promotion.create"})
	}
	rr := httptest.NewRecorder()
	Handler{Store: store}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-log?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data       []Entry           `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 2, body.Pagination.Page)
}
