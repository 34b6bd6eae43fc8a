package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lattice-im/lattice/internal/services"
	"github.com/lattice-im/lattice/internal/types"
)

const (
	defaultTypingTimeoutMS = 30000
	maxTypingTimeoutMS     = 120000
)

func (s *Session) handlePing(context.Context, *Request) (json.RawMessage, error) {
	return nil, nil
}

// handlePresence validates params strictly: presence is required,
// status_msg must be a string when present, and no other keys are allowed.
func (s *Session) handlePresence(ctx context.Context, req *Request) (json.RawMessage, error) {
	var params map[string]json.RawMessage
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, types.NewError(types.CodeUnknown, "Unable to parse state")
	}

	var update services.PresenceUpdate

	presenceRaw, ok := params["presence"]
	if !ok {
		return nil, types.NewError(types.CodeUnknown, "Unable to parse state")
	}
	delete(params, "presence")
	if err := json.Unmarshal(presenceRaw, &update.Presence); err != nil {
		return nil, types.NewError(types.CodeUnknown, "Unable to parse state")
	}

	if statusRaw, ok := params["status_msg"]; ok {
		delete(params, "status_msg")
		if err := json.Unmarshal(statusRaw, &update.StatusMsg); err != nil {
			return nil, types.NewError(types.CodeUnknown, "status_msg must be a string.")
		}
	}

	if len(params) > 0 {
		return nil, types.NewError(types.CodeBadJSON, "Too many keys")
	}

	if err := s.factory.svc.Presence.SetState(ctx, s.req.User, update); err != nil {
		return nil, err
	}
	s.setPresenceIntent(update.Presence)
	return nil, nil
}

func (s *Session) handleReadMarkers(ctx context.Context, req *Request) (json.RawMessage, error) {
	if err := s.factory.svc.Presence.BumpActiveTime(ctx, s.req.User); err != nil {
		return nil, err
	}

	var params struct {
		RoomID    string `json:"room_id"`
		Read      string `json:"m.read"`
		FullyRead string `json:"m.fully_read"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, types.NewError(types.CodeBadJSON, "Unable to parse read marker params")
	}
	if (params.Read != "" || params.FullyRead != "") && params.RoomID == "" {
		return nil, types.NewError(types.CodeBadJSON, "room_id is required")
	}

	if params.Read != "" {
		err := s.factory.svc.Receipts.ReceivedClientReceipt(ctx, params.RoomID, "m.read", s.req.User, params.Read)
		if err != nil {
			return nil, err
		}
	}

	if params.FullyRead != "" {
		err := s.factory.svc.ReadMarkers.ReceivedClientReadMarker(ctx, params.RoomID, s.req.User, params.FullyRead)
		if err != nil {
			return nil, err
		}
	}

	return nil, nil
}

type eventParams struct {
	EventType string          `json:"event_type"`
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"room_id"`
	StateKey  *string         `json:"state_key"`
}

func (p *eventParams) validate(needStateKey bool) error {
	if p.EventType == "" {
		return types.NewError(types.CodeBadJSON, "event_type is required")
	}
	if p.RoomID == "" {
		return types.NewError(types.CodeBadJSON, "room_id is required")
	}
	if len(p.Content) == 0 {
		return types.NewError(types.CodeBadJSON, "content is required")
	}
	if needStateKey && p.StateKey == nil {
		return types.NewError(types.CodeBadJSON, "state_key is required")
	}
	return nil
}

// handleSend creates a new non-state event. Retries with the same message
// id are answered from the transaction cache without re-executing.
func (s *Session) handleSend(ctx context.Context, req *Request) (json.RawMessage, error) {
	return s.factory.txns.FetchOrExecute(s.txnKey(req.ID), func() (json.RawMessage, error) {
		return s.sendEvent(ctx, req)
	})
}

func (s *Session) sendEvent(ctx context.Context, req *Request) (json.RawMessage, error) {
	var params eventParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, types.NewError(types.CodeBadJSON, "Unable to parse event params")
	}
	if err := params.validate(false); err != nil {
		return nil, err
	}

	if err := s.factory.svc.Presence.BumpActiveTime(ctx, s.req.User); err != nil {
		return nil, err
	}

	eventID, err := s.factory.svc.Events.CreateAndSendEvent(ctx, s.req, services.EventTemplate{
		Type:    params.EventType,
		RoomID:  params.RoomID,
		Content: params.Content,
	}, req.ID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"event_id": eventID})
}

// handleState creates a state event. Membership events are routed through
// membership-change logic instead of generic event creation. Idempotent
// like handleSend.
func (s *Session) handleState(ctx context.Context, req *Request) (json.RawMessage, error) {
	return s.factory.txns.FetchOrExecute(s.txnKey(req.ID), func() (json.RawMessage, error) {
		return s.sendStateEvent(ctx, req)
	})
}

func (s *Session) sendStateEvent(ctx context.Context, req *Request) (json.RawMessage, error) {
	var params eventParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, types.NewError(types.CodeBadJSON, "Unable to parse event params")
	}
	if err := params.validate(true); err != nil {
		return nil, err
	}

	if err := s.factory.svc.Presence.BumpActiveTime(ctx, s.req.User); err != nil {
		return nil, err
	}

	var eventID string
	var err error
	if params.EventType == types.EventTypeMember {
		action := gjson.GetBytes(params.Content, "membership").String()
		eventID, err = s.factory.svc.Membership.UpdateMembership(
			ctx, s.req, types.UserID(*params.StateKey), params.RoomID, action, params.Content)
	} else {
		eventID, err = s.factory.svc.Events.CreateAndSendEvent(ctx, s.req, services.EventTemplate{
			Type:     params.EventType,
			RoomID:   params.RoomID,
			StateKey: params.StateKey,
			Content:  params.Content,
		}, req.ID)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"event_id": eventID})
}

func (s *Session) handleTyping(ctx context.Context, req *Request) (json.RawMessage, error) {
	var params struct {
		RoomID  string `json:"room_id"`
		Typing  *bool  `json:"typing"`
		Timeout *int64 `json:"timeout"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, types.NewError(types.CodeBadJSON, "Unable to parse typing params")
	}
	if params.RoomID == "" {
		return nil, types.NewError(types.CodeBadJSON, "room_id is required")
	}
	if params.Typing == nil {
		return nil, types.NewError(types.CodeBadJSON, "typing is required")
	}

	// Limit the timeout to stop people from setting silly typing timeouts.
	timeoutMS := int64(defaultTypingTimeoutMS)
	if params.Timeout != nil {
		timeoutMS = *params.Timeout
	}
	if timeoutMS > maxTypingTimeoutMS {
		timeoutMS = maxTypingTimeoutMS
	}
	if timeoutMS < 0 {
		return nil, types.NewError(types.CodeBadJSON, fmt.Sprintf("Invalid timeout %d", timeoutMS))
	}

	if err := s.factory.svc.Presence.BumpActiveTime(ctx, s.req.User); err != nil {
		return nil, err
	}

	if *params.Typing {
		err := s.factory.svc.Typing.StartedTyping(ctx, s.req.User, params.RoomID, time.Duration(timeoutMS)*time.Millisecond)
		if err != nil {
			return nil, err
		}
	} else {
		err := s.factory.svc.Typing.StoppedTyping(ctx, s.req.User, params.RoomID)
		if err != nil {
			return nil, err
		}
	}

	return nil, nil
}
