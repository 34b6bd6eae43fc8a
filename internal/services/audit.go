package services

import (
	"context"
	"database/sql"
	"fmt"
)

// AuditStore persists client address observations in SQLite.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an audit store backed by db.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// InsertClientIP implements Audit.
func (s *AuditStore) InsertClientIP(ctx context.Context, rec ClientRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_ips (user_id, token_id, device_id, ip, user_agent)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, token_id, ip)
		DO UPDATE SET device_id = excluded.device_id,
		              user_agent = excluded.user_agent,
		              last_seen = CURRENT_TIMESTAMP`,
		rec.User.String(), rec.TokenID, rec.DeviceID, rec.IP, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to record client ip: %w", err)
	}
	return nil
}
