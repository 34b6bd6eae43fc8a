// Package services defines the external collaborators the websocket edge
// drives: presence, typing, receipts, read markers, event creation,
// membership updates, and client audit recording. Each concern is an
// interface with a local implementation suitable for single-process
// deployments and tests; a federated deployment substitutes its own.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-im/lattice/internal/streams"
	"github.com/lattice-im/lattice/internal/types"
)

// PresenceUpdate is a client-declared presence change.
type PresenceUpdate struct {
	Presence  string
	StatusMsg string
}

// Presence tracks user online state.
type Presence interface {
	// SetState records a user's declared presence.
	SetState(ctx context.Context, user types.UserID, update PresenceUpdate) error

	// UserSyncing marks the user as actively syncing for the duration of
	// one poll. The returned release function must be called exactly once
	// on every exit path. When affectPresence is false the marker is a
	// no-op but release must still be called.
	UserSyncing(ctx context.Context, user types.UserID, affectPresence bool) (release func(), err error)

	// BumpActiveTime records client activity for idle detection.
	BumpActiveTime(ctx context.Context, user types.UserID) error
}

// Typing relays typing indicators.
type Typing interface {
	StartedTyping(ctx context.Context, user types.UserID, roomID string, timeout time.Duration) error
	StoppedTyping(ctx context.Context, user types.UserID, roomID string) error
}

// Receipts records client read receipts.
type Receipts interface {
	ReceivedClientReceipt(ctx context.Context, roomID, receiptType string, user types.UserID, eventID string) error
}

// ReadMarkers records fully-read markers.
type ReadMarkers interface {
	ReceivedClientReadMarker(ctx context.Context, roomID string, user types.UserID, eventID string) error
}

// EventTemplate is the client-supplied portion of a new event.
type EventTemplate struct {
	Type     string
	RoomID   string
	StateKey *string
	Content  json.RawMessage
}

// EventCreator creates and delivers new events.
type EventCreator interface {
	// CreateAndSendEvent persists a non-membership event as the requester
	// and returns its event ID. txnID is the client's message ID, passed
	// through for downstream deduplication.
	CreateAndSendEvent(ctx context.Context, req *types.Requester, tmpl EventTemplate, txnID string) (eventID string, err error)
}

// Membership applies membership changes, which have their own
// authorization rules and side effects.
type Membership interface {
	UpdateMembership(ctx context.Context, req *types.Requester, target types.UserID, roomID, action string, content json.RawMessage) (eventID string, err error)
}

// ClientRecord is one audit observation of a connected client.
type ClientRecord struct {
	User      types.UserID
	TokenID   int64
	DeviceID  string
	IP        string
	UserAgent string
}

// Audit records client address and device observations for rate limiting
// and abuse handling. Failures are advisory; callers treat them as
// non-fatal.
type Audit interface {
	InsertClientIP(ctx context.Context, rec ClientRecord) error
}

// Registry bundles every collaborator the connection factory needs.
type Registry struct {
	Presence    Presence
	Typing      Typing
	Receipts    Receipts
	ReadMarkers ReadMarkers
	Events      EventCreator
	Membership  Membership
	Audit       Audit
	Sync        streams.Handler
}
