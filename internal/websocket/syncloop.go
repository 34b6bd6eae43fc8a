package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lattice-im/lattice/internal/streams"
	"github.com/lattice-im/lattice/internal/types"
)

// runSyncLoop repeatedly long-polls the sync service and pushes each batch
// to the client. The initial poll uses a zero timeout so the client gets
// its current state immediately; later polls block for the configured
// long-poll timeout. The loop ends when the session is cancelled or a poll
// fails; a failed poll closes the connection with an internal-error code
// rather than leaving the stream silently dead.
func (s *Session) runSyncLoop() {
	initial := true
	for {
		if err := s.syncOnce(initial); err != nil {
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.log.Warn("sync failed, closing connection", zap.Error(err))
			s.closeWithCode(websocket.CloseInternalServerErr, "sync failed")
			return
		}
		initial = false

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// syncOnce performs one poll: mark the user as syncing, wait for the next
// batch, advance the cursor, and push the batch. The syncing marker is
// released on every exit path.
func (s *Session) syncOnce(initial bool) error {
	affectPresence := s.PresenceIntent() != types.PresenceOffline

	release, err := s.factory.svc.Presence.UserSyncing(s.ctx, s.req.User, affectPresence)
	if err != nil {
		return fmt.Errorf("failed to mark user syncing: %w", err)
	}
	defer release()

	// full_state applies to the first poll only.
	fullState := initial && s.fullState

	var timeout time.Duration
	if !initial {
		timeout = s.factory.cfg.SyncTimeout
	}

	cfg := streams.Config{
		User:       s.req.User,
		Filter:     s.filter,
		IsGuest:    s.req.IsGuest,
		DeviceID:   s.req.DeviceID,
		RequestKey: s.requestKey(fullState),
	}

	result, err := s.factory.svc.Sync.WaitForSync(s.ctx, cfg, s.since, timeout, fullState)
	if err != nil {
		return err
	}

	// The session may have been closed while the poll was outstanding;
	// a late result must not be delivered.
	if err := s.ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode sync batch: %w", err)
	}

	s.since = result.NextBatch
	return s.writeMessage(payload)
}

// requestKey fingerprints this poll for the sync service's response cache.
func (s *Session) requestKey(fullState bool) string {
	return fmt.Sprintf("%s|0|%s|%s|%t|%s",
		s.req.User, s.since, s.filterID, fullState, s.req.DeviceID)
}
