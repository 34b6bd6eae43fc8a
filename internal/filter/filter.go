package filter

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lattice-im/lattice/internal/types"
)

// Collection is a validated filter specification restricting which events
// and rooms are included in sync batches.
type Collection struct {
	raw string
}

// Default is the permissive filter applied when the client supplies none.
// It imposes no restriction.
func Default() *Collection {
	return &Collection{raw: "{}"}
}

var allowedTopLevel = map[string]bool{
	"room":         true,
	"presence":     true,
	"account_data": true,
	"event_fields": true,
	"event_format": true,
}

var allowedRoomLevel = map[string]bool{
	"rooms":         true,
	"not_rooms":     true,
	"ephemeral":     true,
	"include_leave": true,
	"state":         true,
	"timeline":      true,
	"account_data":  true,
}

// ParseInline parses an inline filter JSON object. The timeline limit, when
// present, is clamped to maxTimelineLimit before validation.
func ParseInline(raw string, maxTimelineLimit int) (*Collection, error) {
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return nil, types.NewError(types.CodeBadJSON, "Invalid filter JSON")
	}

	// Clamp the timeline limit to stop clients requesting huge batches.
	if limit := gjson.Get(raw, "room.timeline.limit"); limit.Exists() {
		if maxTimelineLimit >= 0 && limit.Int() > int64(maxTimelineLimit) {
			clamped, err := sjson.Set(raw, "room.timeline.limit", maxTimelineLimit)
			if err != nil {
				return nil, fmt.Errorf("failed to clamp timeline limit: %w", err)
			}
			raw = clamped
		}
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	return &Collection{raw: raw}, nil
}

func validate(raw string) error {
	var bad string
	gjson.Parse(raw).ForEach(func(key, _ gjson.Result) bool {
		if !allowedTopLevel[key.String()] {
			bad = key.String()
			return false
		}
		return true
	})
	if bad != "" {
		return types.NewError(types.CodeBadJSON, fmt.Sprintf("Unknown filter key %q", bad))
	}

	gjson.Get(raw, "room").ForEach(func(key, _ gjson.Result) bool {
		if !allowedRoomLevel[key.String()] {
			bad = key.String()
			return false
		}
		return true
	})
	if bad != "" {
		return types.NewError(types.CodeBadJSON, fmt.Sprintf("Unknown room filter key %q", bad))
	}
	return nil
}

// TimelineLimit returns the filter's room timeline limit, or 0 when the
// filter imposes none.
func (c *Collection) TimelineLimit() int {
	return int(gjson.Get(c.raw, "room.timeline.limit").Int())
}

// IncludesRoom reports whether events for roomID pass the room filter.
func (c *Collection) IncludesRoom(roomID string) bool {
	if rooms := gjson.Get(c.raw, "room.rooms"); rooms.Exists() {
		found := false
		rooms.ForEach(func(_, v gjson.Result) bool {
			if v.String() == roomID {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	excluded := false
	gjson.Get(c.raw, "room.not_rooms").ForEach(func(_, v gjson.Result) bool {
		if v.String() == roomID {
			excluded = true
			return false
		}
		return true
	})
	return !excluded
}

// JSON returns the filter's canonical JSON representation.
func (c *Collection) JSON() string {
	return c.raw
}
