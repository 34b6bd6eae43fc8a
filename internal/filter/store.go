package filter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when a named filter does not exist for the user.
var ErrNotFound = errors.New("filter not found")

// Store persists named filters so clients can reference them by ID instead
// of resending the full specification on every connection.
type Store struct {
	db *sql.DB
}

// NewStore creates a filter store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add validates and stores a filter for the user, returning its ID.
func (s *Store) Add(ctx context.Context, localpart, raw string, maxTimelineLimit int) (string, error) {
	c, err := ParseInline(raw, maxTimelineLimit)
	if err != nil {
		return "", err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user_filters (user_localpart, filter_json) VALUES (?, ?)",
		localpart, c.JSON(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store filter: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read filter id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Get looks up a previously stored filter by ID for the user.
func (s *Store) Get(ctx context.Context, localpart, filterID string) (*Collection, error) {
	id, err := strconv.ParseInt(filterID, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		"SELECT filter_json FROM user_filters WHERE id = ? AND user_localpart = ?",
		id, localpart,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load filter: %w", err)
	}

	return &Collection{raw: raw}, nil
}
