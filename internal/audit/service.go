package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/obs"
)

// Entry is one back-office action: who changed which promotion code or order, and
// with what outcome.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	Admin        string          `json:"admin"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Route        string          `json:"route"`
	Status       int             `json:"status"`
	RequestID    string          `json:"requestId,omitempty"`
	IP           string          `json:"ip,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	InsertAuditEntry(ctx context.Context, e Entry) error
	ListAuditEntries(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service records admin actions.
type Service struct {
	Store   Store
	Enabled bool
	Now     func() time.Time
}

// Record persists an entry built from the handled request.
func (s Service) Record(ctx context.Context, req *http.Request, status int, action, resourceType, resourceID string, metadata map[string]any) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	admin, _ := common.AdminSubject(req.Context())
	if status == 0 {
		status = http.StatusOK
	}
	entry := Entry{
		ID:           uuid.New(),
		Admin:        strings.TrimSpace(admin),
		Action:       buildAction(action, req.Method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   strings.TrimSpace(resourceID),
		Method:       req.Method,
		Route:        route,
		Status:       status,
		RequestID:    middleware.GetReqID(req.Context()),
		IP:           common.ClientIP(req),
		CreatedAt:    s.now(),
	}
	if entry.Admin == "" {
		entry.Admin = "unknown"
	}
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		entry.Metadata = data
	}
	return s.Store.InsertAuditEntry(ctx, entry)
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// buildResource derives "admin.orders" style names from the route when none is given.
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	var kept []string
	for _, seg := range strings.Split(route, "/") {
		if strings.HasPrefix(seg, "{") {
			break
		}
		kept = append(kept, seg)
	}
	if len(kept) >= 2 && kept[0] == "api" && kept[1] == "v1" {
		kept = kept[2:]
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}
