package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lattice-im/lattice/internal/types"
)

// EventSink appends formatted events to a room's change stream.
// *streams.Store satisfies it.
type EventSink interface {
	Append(roomID string, raw json.RawMessage) types.StreamToken
}

// EventWriter creates events and feeds them into the stream store. It
// implements EventCreator and Membership.
type EventWriter struct {
	serverName string
	sink       EventSink
}

// NewEventWriter creates an event writer delivering into sink.
func NewEventWriter(serverName string, sink EventSink) *EventWriter {
	return &EventWriter{serverName: serverName, sink: sink}
}

type formattedEvent struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Unsigned       map[string]any  `json:"unsigned,omitempty"`
}

func (w *EventWriter) newEventID() string {
	return fmt.Sprintf("$%s:%s", uuid.NewString(), w.serverName)
}

// CreateAndSendEvent implements EventCreator.
func (w *EventWriter) CreateAndSendEvent(_ context.Context, req *types.Requester, tmpl EventTemplate, txnID string) (string, error) {
	if tmpl.Type == "" || tmpl.RoomID == "" {
		return "", types.NewError(types.CodeBadJSON, "Missing event type or room_id")
	}
	if !json.Valid(tmpl.Content) {
		return "", types.NewError(types.CodeBadJSON, "Event content is not valid JSON")
	}

	ev := formattedEvent{
		EventID:        w.newEventID(),
		Type:           tmpl.Type,
		RoomID:         tmpl.RoomID,
		Sender:         req.User.String(),
		StateKey:       tmpl.StateKey,
		Content:        tmpl.Content,
		OriginServerTS: time.Now().UnixMilli(),
	}
	if txnID != "" {
		ev.Unsigned = map[string]any{"transaction_id": txnID}
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	w.sink.Append(tmpl.RoomID, raw)
	return ev.EventID, nil
}

var validMembershipActions = map[string]bool{
	"join":   true,
	"leave":  true,
	"invite": true,
	"ban":    true,
	"knock":  true,
}

// UpdateMembership implements Membership.
func (w *EventWriter) UpdateMembership(ctx context.Context, req *types.Requester, target types.UserID, roomID, action string, content json.RawMessage) (string, error) {
	if !validMembershipActions[action] {
		return "", types.NewError(types.CodeBadJSON, fmt.Sprintf("Unknown membership action %q", action))
	}
	if req.IsGuest && action != "join" && action != "leave" {
		return "", types.NewError(types.CodeForbidden, "Guests may only join or leave rooms")
	}

	// Make sure the content carries the membership being applied.
	if gjson.GetBytes(content, "membership").String() != action {
		merged, err := sjson.SetBytes(content, "membership", action)
		if err != nil {
			return "", types.NewError(types.CodeBadJSON, "Unable to parse membership content")
		}
		content = merged
	}

	stateKey := target.String()
	return w.CreateAndSendEvent(ctx, req, EventTemplate{
		Type:     types.EventTypeMember,
		RoomID:   roomID,
		StateKey: &stateKey,
		Content:  content,
	}, "")
}
