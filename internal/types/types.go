package types

import (
	"fmt"
	"strings"
)

// UserID is a fully-qualified user identifier of the form "@local:server".
type UserID string

// NewUserID builds a user ID from a localpart and server name.
func NewUserID(localpart, serverName string) UserID {
	return UserID(fmt.Sprintf("@%s:%s", localpart, serverName))
}

// Localpart returns the part between "@" and ":". Returns the whole string
// (minus a leading "@") when the ID is not fully qualified.
func (u UserID) Localpart() string {
	s := strings.TrimPrefix(string(u), "@")
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func (u UserID) String() string {
	return string(u)
}

// StreamToken is an opaque position in the server's change stream. The
// zero value means "from the beginning".
type StreamToken string

// Requester identifies the authenticated principal behind a connection.
// All fields are fixed at handshake time.
type Requester struct {
	User     UserID
	TokenID  int64
	DeviceID string
	IsGuest  bool
}

// Presence states a client may declare for itself.
const (
	PresenceOnline      = "online"
	PresenceOffline     = "offline"
	PresenceUnavailable = "unavailable"
)

// ValidPresence reports whether s is a recognized presence state.
func ValidPresence(s string) bool {
	switch s {
	case PresenceOnline, PresenceOffline, PresenceUnavailable:
		return true
	}
	return false
}

// Membership event type. State events of this type are routed through
// membership-change logic rather than generic event creation.
const EventTypeMember = "m.room.member"
