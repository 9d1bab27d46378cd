package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/frameset/internal/audit"
)

var _ audit.Sink = (*PostgresStore)(nil)

func (s *PostgresStore) WriteAudit(ctx context.Context, e audit.Entry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, resource, request_id, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.Action), e.Resource, e.RequestID, e.IPAddress, e.UserAgent, raw, e.At,
	)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries for resource, or for every resource
// when it is empty.
func (s *PostgresStore) ListAudit(ctx context.Context, resource string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT action, resource, request_id, ip_address, user_agent, metadata, created_at
		FROM audit_log
		WHERE $1 = '' OR resource = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var action string
		var raw []byte
		if err := rows.Scan(&action, &e.Resource, &e.RequestID, &e.IPAddress, &e.UserAgent, &raw, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
