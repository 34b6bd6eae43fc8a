package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lattice-im/lattice/internal/types"
)

// ErrInvalidToken is returned when a client-supplied stream token cannot
// be parsed.
var ErrInvalidToken = errors.New("invalid stream token")

// FormatToken encodes a stream position as an opaque token.
func FormatToken(pos int64) types.StreamToken {
	return types.StreamToken("s" + strconv.FormatInt(pos, 10))
}

// ParseToken decodes a stream token. The empty token means position zero,
// "from the beginning".
func ParseToken(tok types.StreamToken) (int64, error) {
	if tok == "" {
		return 0, nil
	}
	s := strings.TrimPrefix(string(tok), "s")
	pos, err := strconv.ParseInt(s, 10, 64)
	if err != nil || pos < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	return pos, nil
}

type storedEvent struct {
	pos    int64
	roomID string
	raw    json.RawMessage
}

// Store is an in-memory event stream implementing Handler. Appends advance
// a single monotonic position; waiters are woken by a channel that is
// closed and replaced on every append.
type Store struct {
	mu     sync.Mutex
	pos    int64
	events []storedEvent
	wake   chan struct{}

	// Coalesces identical concurrent sync computations by request key.
	sf singleflight.Group
}

// NewStore creates an empty stream store.
func NewStore() *Store {
	return &Store{wake: make(chan struct{})}
}

// Append adds an event to a room's stream and returns the new stream
// position as a token.
func (s *Store) Append(roomID string, raw json.RawMessage) types.StreamToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pos++
	s.events = append(s.events, storedEvent{pos: s.pos, roomID: roomID, raw: raw})
	close(s.wake)
	s.wake = make(chan struct{})
	return FormatToken(s.pos)
}

// WaitForSync implements Handler.
func (s *Store) WaitForSync(ctx context.Context, cfg Config, since types.StreamToken, timeout time.Duration, fullState bool) (*Response, error) {
	sincePos, err := ParseToken(since)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		if err := s.waitForData(ctx, sincePos, timeout); err != nil {
			return nil, err
		}
	}

	res, err, _ := s.sf.Do(cfg.RequestKey, func() (interface{}, error) {
		return s.buildResponse(cfg, sincePos, fullState), nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Response), nil
}

// waitForData blocks until the stream advances past sincePos, the timeout
// elapses, or ctx is cancelled.
func (s *Store) waitForData(ctx context.Context, sincePos int64, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		pos, wake := s.pos, s.wake
		s.mu.Unlock()

		if pos > sincePos {
			return nil
		}

		select {
		case <-wake:
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store) buildResponse(cfg Config, sincePos int64, fullState bool) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := sincePos
	if fullState {
		from = 0
	}

	byRoom := make(map[string][]json.RawMessage)
	for _, ev := range s.events {
		if ev.pos <= from {
			continue
		}
		if cfg.Filter != nil && !cfg.Filter.IncludesRoom(ev.roomID) {
			continue
		}
		byRoom[ev.roomID] = append(byRoom[ev.roomID], ev.raw)
	}

	limit := 0
	if cfg.Filter != nil {
		limit = cfg.Filter.TimelineLimit()
	}

	join := make(map[string]JoinedRoom, len(byRoom))
	for roomID, evs := range byRoom {
		limited := false
		if limit > 0 && len(evs) > limit {
			evs = evs[len(evs)-limit:]
			limited = true
		}
		join[roomID] = JoinedRoom{
			State:     EventList{Events: []json.RawMessage{}},
			Timeline:  Timeline{Events: evs, Limited: limited, PrevBatch: FormatToken(from)},
			Ephemeral: EventList{Events: []json.RawMessage{}},
		}
	}

	return &Response{
		NextBatch:   FormatToken(s.pos),
		Presence:    EventList{Events: []json.RawMessage{}},
		AccountData: EventList{Events: []json.RawMessage{}},
		Rooms: RoomsSection{
			Join:   join,
			Invite: map[string]InvitedRoom{},
			Leave:  map[string]LeftRoom{},
		},
	}
}
