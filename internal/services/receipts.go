package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lattice-im/lattice/internal/types"
)

// ReceiptStore persists read receipts and fully-read markers in SQLite.
// It implements both Receipts and ReadMarkers.
type ReceiptStore struct {
	db *sql.DB
}

// NewReceiptStore creates a receipt store backed by db.
func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// ReceivedClientReceipt implements Receipts.
func (s *ReceiptStore) ReceivedClientReceipt(ctx context.Context, roomID, receiptType string, user types.UserID, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (room_id, user_id, receipt_type, event_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_id, user_id, receipt_type)
		DO UPDATE SET event_id = excluded.event_id, received_at = CURRENT_TIMESTAMP`,
		roomID, user.String(), receiptType, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

// ReceivedClientReadMarker implements ReadMarkers.
func (s *ReceiptStore) ReceivedClientReadMarker(ctx context.Context, roomID string, user types.UserID, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_markers (room_id, user_id, event_id)
		VALUES (?, ?, ?)
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET event_id = excluded.event_id, updated_at = CURRENT_TIMESTAMP`,
		roomID, user.String(), eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to record read marker: %w", err)
	}
	return nil
}

// GetReceipt returns the user's latest receipt of the given type in a room.
func (s *ReceiptStore) GetReceipt(ctx context.Context, roomID string, user types.UserID, receiptType string) (string, error) {
	var eventID string
	err := s.db.QueryRowContext(ctx,
		"SELECT event_id FROM receipts WHERE room_id = ? AND user_id = ? AND receipt_type = ?",
		roomID, user.String(), receiptType,
	).Scan(&eventID)
	if err != nil {
		return "", err
	}
	return eventID, nil
}
