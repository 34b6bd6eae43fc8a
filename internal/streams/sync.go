// Package streams defines the interface to the sync computation service:
// the component that answers "what changed for this user since token X",
// holding the request open until something does. The websocket edge only
// depends on the Handler interface; Store is a self-contained in-memory
// implementation used by local deployments and tests.
package streams

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-im/lattice/internal/filter"
	"github.com/lattice-im/lattice/internal/types"
)

// Config carries the per-session parameters of a sync computation.
type Config struct {
	User     types.UserID
	Filter   *filter.Collection
	IsGuest  bool
	DeviceID string

	// RequestKey fingerprints the request for the handler's internal
	// response caching. Two requests with the same key may be answered
	// by a single computation.
	RequestKey string
}

// Handler computes the next batch of changes for a user. Implementations
// block until new data is available, timeout elapses, or ctx is cancelled.
// A zero timeout returns the current state immediately.
type Handler interface {
	WaitForSync(ctx context.Context, cfg Config, since types.StreamToken, timeout time.Duration, fullState bool) (*Response, error)
}

// Response is the encoded sync batch delivered to clients. Its shape is
// the batch-encoding contract shared with the HTTP sync endpoint.
type Response struct {
	NextBatch   types.StreamToken `json:"next_batch"`
	Presence    EventList         `json:"presence"`
	AccountData EventList         `json:"account_data"`
	Rooms       RoomsSection      `json:"rooms"`
}

// EventList wraps a list of raw events.
type EventList struct {
	Events []json.RawMessage `json:"events"`
}

// RoomsSection groups per-room updates by the user's membership.
type RoomsSection struct {
	Join   map[string]JoinedRoom  `json:"join"`
	Invite map[string]InvitedRoom `json:"invite"`
	Leave  map[string]LeftRoom    `json:"leave"`
}

// JoinedRoom holds updates for a room the user is joined to.
type JoinedRoom struct {
	State     EventList `json:"state"`
	Timeline  Timeline  `json:"timeline"`
	Ephemeral EventList `json:"ephemeral"`
}

// InvitedRoom holds the stripped state of a room the user is invited to.
type InvitedRoom struct {
	InviteState EventList `json:"invite_state"`
}

// LeftRoom holds the final updates for a room the user has left.
type LeftRoom struct {
	State    EventList `json:"state"`
	Timeline Timeline  `json:"timeline"`
}

// Timeline is an ordered window of a room's event stream.
type Timeline struct {
	Events    []json.RawMessage `json:"events"`
	Limited   bool              `json:"limited"`
	PrevBatch types.StreamToken `json:"prev_batch,omitempty"`
}
