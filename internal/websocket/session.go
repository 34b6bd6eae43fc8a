package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lattice-im/lattice/internal/filter"
	"github.com/lattice-im/lattice/internal/types"
)

// Session is the per-connection state machine. Identity and filter are
// fixed at handshake time; the cursor belongs to the sync loop goroutine;
// the presence intent is shared between the read loop (presence commands)
// and the sync loop (affect-presence decisions) and is mutex-guarded.
type Session struct {
	factory *Factory
	conn    *websocket.Conn
	log     *zap.Logger

	req      *types.Requester
	peer     string
	filter   *filter.Collection
	filterID string

	// since is the cursor of the last delivered batch. Owned by the sync
	// loop goroutine; never touched elsewhere after the handshake.
	since types.StreamToken

	// fullState is honored on the first poll only.
	fullState bool

	mu       sync.Mutex
	presence string

	// writeMu serializes frames: command replies from the read loop and
	// batch pushes from the sync loop share one connection.
	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	dispatcher *Dispatcher
}

func newSession(f *Factory, conn *websocket.Conn, req *types.Requester, peer string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		factory:  f,
		conn:     conn,
		log:      f.log.With(zap.String("user", req.User.String()), zap.String("peer", peer)),
		req:      req,
		peer:     peer,
		filter:   filter.Default(),
		presence: types.PresenceOnline,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.dispatcher = newDispatcher(s)
	return s
}

// PresenceIntent returns the presence state the client last declared.
func (s *Session) PresenceIntent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

func (s *Session) setPresenceIntent(presence string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = presence
}

// txnKey derives the transaction cache key for a client message id.
func (s *Session) txnKey(msgID string) string {
	return fmt.Sprintf("%s/%d/%s", s.req.User, s.req.TokenID, msgID)
}

// writeMessage delivers one text frame to the client.
func (s *Session) writeMessage(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// closeWithCode sends a close frame and tears the session down.
func (s *Session) closeWithCode(code int, reason string) {
	s.writeMu.Lock()
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), closeWriteDeadline())
	s.writeMu.Unlock()
	if err != nil {
		s.log.Debug("failed to write close frame", zap.Error(err))
	}
	s.teardown()
}

// run drives the connection: the sync loop in its own goroutine, the read
// loop in the caller's. It returns when the connection is gone.
func (s *Session) run() {
	s.log.Info("connection open",
		zap.String("device", s.req.DeviceID),
		zap.String("since", string(s.since)))

	go s.runSyncLoop()
	s.readLoop()
	s.teardown()
}

// readLoop processes inbound envelopes in arrival order. Binary frames
// are ignored.
func (s *Session) readLoop() {
	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.log.Debug("ignoring binary frame", zap.Int("bytes", len(payload)))
			continue
		}
		s.dispatcher.Dispatch(s.ctx, payload)
	}
}

// teardown cancels the in-flight poll, stops the sync loop, and closes
// the transport. Safe to call from any goroutine, any number of times.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
		s.log.Info("connection closed")
	})
}
