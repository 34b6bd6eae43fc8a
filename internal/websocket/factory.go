package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lattice-im/lattice/internal/auth"
	"github.com/lattice-im/lattice/internal/config"
	"github.com/lattice-im/lattice/internal/filter"
	"github.com/lattice-im/lattice/internal/services"
	"github.com/lattice-im/lattice/internal/streams"
	"github.com/lattice-im/lattice/internal/types"
)

// SubprotocolJSON is the only application subprotocol we speak.
const SubprotocolJSON = "m.json"

// Close codes used when a handshake is rejected after the transport
// upgrade.
const (
	CloseNoAccessToken      = 3001
	CloseUnknownAccessToken = 3002
	CloseAuthFailure        = 3003
)

// Close reasons paired with the codes above.
const (
	reasonNoAccessToken      = "No access_token provided."
	reasonUnknownAccessToken = "Unknown access_token."
	reasonAuthFailure        = "Unknown failure trying to auth."
)

func closeWriteDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}

// Factory accepts transport connections and builds one Session per
// connection. It owns the state shared across connections: the
// transaction cache, the connection manager, and the connection gauge.
type Factory struct {
	cfg     *config.Config
	log     *zap.Logger
	auth    auth.Auth
	filters *filter.Store
	svc     *services.Registry

	txns     *TransactionCache
	manager  *ConnectionManager
	upgrader websocket.Upgrader
}

// NewFactory creates a connection factory and registers its connection
// gauge with reg (pass nil to skip metrics registration).
func NewFactory(cfg *config.Config, log *zap.Logger, authSvc auth.Auth, filters *filter.Store, svc *services.Registry, reg prometheus.Registerer) (*Factory, error) {
	f := &Factory{
		cfg:     cfg,
		log:     log,
		auth:    authSvc,
		filters: filters,
		svc:     svc,
		txns:    NewTransactionCache(),
		manager: NewConnectionManager(),
	}
	f.upgrader = websocket.Upgrader{
		Subprotocols:      []string{SubprotocolJSON},
		EnableCompression: cfg.Compress,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	if reg != nil {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lattice_websocket_connection_count",
			Help: "Number of active websocket connections.",
		}, func() float64 {
			return float64(f.manager.Count())
		})
		if err := reg.Register(gauge); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// ConnectionCount returns the number of live sessions.
func (f *Factory) ConnectionCount() int {
	return f.manager.Count()
}

// HandleConnect is the gin handler for the websocket endpoint. It
// negotiates the subprotocol, upgrades the transport, and runs the
// session until the connection closes.
func (f *Factory) HandleConnect(c *gin.Context) {
	r := c.Request

	// If the client offered subprotocols, one of them has to be ours;
	// otherwise the handshake fails before the upgrade. Offering none is
	// fine and accepted implicitly.
	offered := websocket.Subprotocols(r)
	if len(offered) > 0 && !containsString(offered, SubprotocolJSON) {
		f.log.Info("rejecting connection, unsupported subprotocols",
			zap.Strings("offered", offered))
		c.String(http.StatusBadRequest, "None of the offered websocket subprotocols is supported")
		return
	}

	conn, err := f.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	f.serveConn(conn, r)
}

// serveConn performs the post-upgrade handshake and, on success, hands
// control to the session's loops. Rejections close the connection with a
// specific close code before any data flows.
func (f *Factory) serveConn(conn *websocket.Conn, r *http.Request) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer := f.clientAddr(r)
	params := r.URL.Query()
	log := f.log.With(zap.String("peer", peer))

	accessToken := params.Get("access_token")
	if accessToken == "" {
		f.rejectConn(conn, CloseNoAccessToken, reasonNoAccessToken)
		return
	}

	req, err := f.auth.GetUserByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownToken) {
			log.Info("closing due to auth error", zap.Error(err))
			f.rejectConn(conn, CloseUnknownAccessToken, reasonUnknownAccessToken)
		} else {
			log.Warn("closing due to unknown auth failure", zap.Error(err))
			f.rejectConn(conn, CloseAuthFailure, reasonAuthFailure)
		}
		return
	}
	log = log.With(zap.String("user", req.User.String()))
	log.Info("authenticated")

	s := newSession(f, conn, req, peer)

	since := types.StreamToken(params.Get("since"))
	if _, err := streams.ParseToken(since); err != nil {
		f.rejectConn(conn, websocket.ClosePolicyViolation, "Invalid since token")
		return
	}
	s.since = since

	if fs := params.Get("full_state"); fs != "" {
		val, err := strconv.ParseBool(fs)
		if err != nil {
			f.rejectConn(conn, websocket.ClosePolicyViolation, "Invalid full_state value")
			return
		}
		s.fullState = val
	}

	if err := f.resolveFilter(ctx, s, params.Get("filter")); err != nil {
		log.Info("rejecting connection, bad filter", zap.Error(err))
		f.rejectConn(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	// Audit failures are advisory and never fail the handshake.
	if err := f.svc.Audit.InsertClientIP(ctx, services.ClientRecord{
		User:      req.User,
		TokenID:   req.TokenID,
		DeviceID:  req.DeviceID,
		IP:        peer,
		UserAgent: r.UserAgent(),
	}); err != nil {
		log.Warn("failed to record client ip", zap.Error(err))
	}

	presence := params.Get("presence")
	if presence == "" {
		presence = types.PresenceOnline
	}
	if !types.ValidPresence(presence) {
		f.rejectConn(conn, websocket.ClosePolicyViolation, "Invalid presence state")
		return
	}
	if presence != types.PresenceOffline {
		if err := f.svc.Presence.SetState(ctx, req.User, services.PresenceUpdate{Presence: presence}); err != nil {
			log.Warn("failed to announce presence", zap.Error(err))
			f.rejectConn(conn, websocket.CloseInternalServerErr, "Failed to set presence")
			return
		}
	}
	s.setPresenceIntent(presence)

	f.manager.Add(s)
	defer f.manager.Remove(s)

	s.run()
}

// resolveFilter applies the handshake's filter parameter to the session:
// a JSON object literal is parsed and clamped inline, anything else is
// looked up as a stored filter id, and absence leaves the permissive
// default in place.
func (f *Factory) resolveFilter(ctx context.Context, s *Session, filterParam string) error {
	if filterParam == "" {
		return nil
	}

	s.filterID = filterParam

	if strings.HasPrefix(filterParam, "{") {
		fc, err := filter.ParseInline(filterParam, f.cfg.FilterTimelineLimit)
		if err != nil {
			return err
		}
		s.filter = fc
		return nil
	}

	fc, err := f.filters.Get(ctx, s.req.User.Localpart(), filterParam)
	if err != nil {
		return err
	}
	s.filter = fc
	return nil
}

// rejectConn refuses a handshake after the upgrade by sending a close
// frame with the given code. No session is created.
func (f *Factory) rejectConn(conn *websocket.Conn, code int, reason string) {
	deadline := closeWriteDeadline()
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		f.log.Debug("failed to write close frame", zap.Error(err))
	}
	conn.Close()
}

// clientAddr resolves the connecting client's address, trusting the
// forwarding header only when the factory is configured as proxied.
func (f *Factory) clientAddr(r *http.Request) string {
	if f.cfg.Proxied {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			// First hop is the client.
			if idx := strings.IndexByte(fwd, ','); idx >= 0 {
				fwd = fwd[:idx]
			}
			return strings.TrimSpace(fwd)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
