package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lattice-im/lattice/internal/types"
)

// Request is an inbound command envelope.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type errorBody struct {
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

type successEnvelope struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

type errorEnvelope struct {
	ID    string    `json:"id"`
	Error errorBody `json:"error"`
}

func encodeSuccess(id string, result json.RawMessage) []byte {
	if result == nil {
		result = json.RawMessage("{}")
	}
	payload, _ := json.Marshal(successEnvelope{ID: id, Result: result})
	return payload
}

func encodeError(id, code, message string) []byte {
	payload, _ := json.Marshal(errorEnvelope{ID: id, Error: errorBody{Code: code, Message: message}})
	return payload
}

type handlerFunc func(ctx context.Context, req *Request) (json.RawMessage, error)

// Dispatcher routes inbound envelopes to handlers and guarantees exactly
// one correlated reply per envelope with a usable id. The method registry
// is built once per connection.
type Dispatcher struct {
	session *Session
	log     *zap.Logger
	methods map[string]handlerFunc
}

func newDispatcher(s *Session) *Dispatcher {
	return &Dispatcher{
		session: s,
		log:     s.log,
		methods: map[string]handlerFunc{
			"ping":         s.handlePing,
			"presence":     s.handlePresence,
			"read_markers": s.handleReadMarkers,
			"send":         s.handleSend,
			"state":        s.handleState,
			"typing":       s.handleTyping,
		},
	}
}

// Dispatch processes one inbound frame. Frames without a trustworthy id
// are dropped; everything else produces exactly one reply.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) {
	if !gjson.ValidBytes(payload) {
		d.log.Warn("received payload is not json")
		return
	}

	id := gjson.GetBytes(payload, "id")
	if id.Type != gjson.String || id.String() == "" {
		d.log.Warn("received envelope without a usable id")
		return
	}

	method := gjson.GetBytes(payload, "method").String()
	handler, ok := d.methods[method]
	if !ok {
		d.reply(encodeError(id.String(), types.CodeBadJSON, "Unknown method"))
		return
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		// Valid JSON but not envelope-shaped (e.g. params not an object).
		d.reply(encodeError(id.String(), types.CodeBadJSON, "Malformed request envelope"))
		return
	}

	result, err := d.invoke(ctx, handler, &req)
	if err != nil {
		var appErr *types.Error
		if errors.As(err, &appErr) {
			d.reply(encodeError(req.ID, appErr.Code, appErr.Message))
		} else {
			d.reply(encodeError(req.ID, types.CodeUnknown, err.Error()))
		}
		return
	}
	d.reply(encodeSuccess(req.ID, result))
}

// invoke runs a handler, converting panics into errors so a broken
// handler never takes the connection down.
func (d *Dispatcher) invoke(ctx context.Context, handler handlerFunc, req *Request) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked",
				zap.String("method", req.Method), zap.Any("panic", r))
			err = fmt.Errorf("internal error handling %s", req.Method)
		}
	}()
	return handler(ctx, req)
}

func (d *Dispatcher) reply(payload []byte) {
	if err := d.session.writeMessage(payload); err != nil {
		d.log.Debug("failed to write reply", zap.Error(err))
	}
}
