package db

import (
	"context"

	"github.com/noah-isme/backend-atelier/internal/audit"
)

// InsertAuditEntry appends an admin action to the audit log.
func (q *Queries) InsertAuditEntry(ctx context.Context, e audit.Entry) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		meta = e.Metadata
	}
	_, err := q.db.Exec(ctx, `INSERT INTO admin_audit_log
(id, admin, action, resource_type, resource_id, method, route, status, request_id, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Admin, e.Action, e.ResourceType, nullString(e.ResourceID), e.Method, e.Route, e.Status,
		nullString(e.RequestID), nullString(e.IP), meta, e.CreatedAt)
	return err
}

// ListAuditEntries returns audit entries newest first.
func (q *Queries) ListAuditEntries(ctx context.Context, limit, offset int) ([]audit.Entry, error) {
	rows, err := q.db.Query(ctx, `SELECT id, admin, action, resource_type, COALESCE(resource_id, ''), method, route,
status, COALESCE(request_id, ''), COALESCE(ip, ''), metadata, created_at
FROM admin_audit_log ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Admin, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method, &e.Route,
			&e.Status, &e.RequestID, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta
		out = append(out, e)
	}
	return out, rows.Err()
}
