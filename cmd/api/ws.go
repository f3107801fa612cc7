package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/alim08/cryptobook/cmd/api/graph"
	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"go.uber.org/zap"
)

const (
	protocolTransportWS = "graphql-transport-ws"
	protocolLegacyWS    = "graphql-ws"

	wsInitTimeout  = 10 * time.Second
	wsKeepAlive    = 15 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsMaxMessage   = 1 << 20
)

const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgPing                = "ping"
	msgPong                = "pong"
	msgSubscribe           = "subscribe"
	msgNext                = "next"
	msgStart               = "start"
	msgData                = "data"
	msgStop                = "stop"
	msgError               = "error"
	msgComplete            = "complete"
	msgKeepAlive           = "ka"
)

// graphql-transport-ws close codes
const (
	closeBadRequest       = 4400
	closeUnauthorized     = 4401
	closeSubprotocol      = 4406
	closeInitTimeout      = 4408
	closeSubscriberExists = 4409
	closeTooManyInits     = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsOperation struct {
	cancel context.CancelFunc
}

// wsSession is one websocket connection speaking either
// graphql-transport-ws or the legacy graphql-ws protocol.
type wsSession struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	legacy bool
	host   string
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu          sync.Mutex
	principal   *auth.Principal
	initialized bool
	ops         map[string]*wsOperation
	wg          sync.WaitGroup
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	// registered before the upgrade so closeSockets cannot miss it
	s.sessions.Add(1)
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	principal, _ := auth.PrincipalFrom(r.Context())
	ctx, cancel := context.WithCancel(s.ctx)
	sess := &wsSession{
		id:        uuid.NewString(),
		srv:       s,
		conn:      conn,
		legacy:    conn.Subprotocol() == protocolLegacyWS,
		host:      r.Host,
		ctx:       ctx,
		cancel:    cancel,
		principal: principal,
		ops:       make(map[string]*wsOperation),
	}
	sess.run()
}

func (c *wsSession) log() *zap.Logger {
	return logger.Log.With(zap.String("session", c.id), zap.String("protocol", c.conn.Subprotocol()))
}

func (c *wsSession) run() {
	defer c.close()

	if c.conn.Subprotocol() == "" {
		c.closeWith(closeSubprotocol, "Subprotocol not acceptable")
		return
	}
	c.conn.SetReadLimit(wsMaxMessage)
	c.log().Debug("websocket session opened")

	go c.watch()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log().Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			if c.legacy {
				c.send(wsMessage{Type: msgConnectionError, Payload: errorPayload(errors.New("invalid message"))})
				continue
			}
			c.closeWith(closeBadRequest, "Invalid message received")
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// watch enforces the init timeout, sends legacy keep-alives and closes the
// socket when the server shuts down.
func (c *wsSession) watch() {
	initTimer := time.NewTimer(wsInitTimeout)
	defer initTimer.Stop()

	var keepAlive <-chan time.Time
	if c.legacy {
		t := time.NewTicker(wsKeepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	for {
		select {
		case <-c.ctx.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-initTimer.C:
			if !c.isInitialized() {
				c.closeWith(closeInitTimeout, "Connection initialisation timeout")
				return
			}
		case <-keepAlive:
			if c.isInitialized() {
				c.send(wsMessage{Type: msgKeepAlive})
			}
		}
	}
}

// handle processes one client message and reports whether the session
// should continue.
func (c *wsSession) handle(msg wsMessage) bool {
	switch {
	case msg.Type == msgConnectionInit:
		c.mu.Lock()
		already := c.initialized
		c.initialized = true
		c.mu.Unlock()
		if already {
			if c.legacy {
				return true
			}
			c.closeWith(closeTooManyInits, "Too many initialisation requests")
			return false
		}
		c.applyInitPayload(msg.Payload)
		c.send(wsMessage{Type: msgConnectionAck})
		if c.legacy {
			c.send(wsMessage{Type: msgKeepAlive})
		}
		return true

	case msg.Type == msgPing && !c.legacy:
		c.send(wsMessage{Type: msgPong})
		return true

	case msg.Type == msgPong && !c.legacy:
		return true

	case msg.Type == msgSubscribe && !c.legacy, msg.Type == msgStart && c.legacy:
		return c.start(msg)

	case msg.Type == msgComplete && !c.legacy, msg.Type == msgStop && c.legacy:
		c.stop(msg.ID)
		return true

	case msg.Type == msgConnectionTerminate && c.legacy:
		return false

	default:
		if c.legacy {
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("unsupported message type " + msg.Type))})
			return true
		}
		c.closeWith(closeBadRequest, "Invalid message received")
		return false
	}
}

// applyInitPayload lets clients that cannot set headers on the upgrade
// request pass their bearer token in connection_init.
func (c *wsSession) applyInitPayload(payload json.RawMessage) {
	if len(payload) == 0 {
		return
	}
	var params map[string]interface{}
	if err := json.Unmarshal(payload, &params); err != nil {
		return
	}
	for _, key := range []string{"Authorization", "authorization"} {
		if v, ok := params[key].(string); ok && v != "" {
			p := c.srv.gate.Resolve(c.host, v)
			c.mu.Lock()
			c.principal = p
			c.mu.Unlock()
			return
		}
	}
}

func (c *wsSession) isInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *wsSession) start(msg wsMessage) bool {
	if !c.isInitialized() {
		if c.legacy {
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("connection not initialised"))})
			return true
		}
		c.closeWith(closeUnauthorized, "Unauthorized")
		return false
	}

	var req graph.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil || msg.ID == "" || req.Query == "" {
		if c.legacy {
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("invalid operation payload"))})
			return true
		}
		c.closeWith(closeBadRequest, "Invalid message received")
		return false
	}

	c.mu.Lock()
	if _, exists := c.ops[msg.ID]; exists {
		c.mu.Unlock()
		if c.legacy {
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("duplicate operation id"))})
			return true
		}
		c.closeWith(closeSubscriberExists, "Subscriber for "+msg.ID+" already exists")
		return false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	ctx = auth.WithPrincipal(ctx, c.principal)
	op := &wsOperation{cancel: cancel}
	c.ops[msg.ID] = op
	c.wg.Add(1)
	c.mu.Unlock()

	go c.execute(ctx, msg.ID, op, req)
	return true
}

func (c *wsSession) execute(ctx context.Context, id string, op *wsOperation, req graph.Request) {
	defer c.wg.Done()
	defer c.finish(id, op)

	kind, err := graph.OperationKind(req)
	if err != nil {
		c.sendErrors(id, err)
		return
	}

	if kind != graph.KindSubscription {
		rctx, cancel := context.WithTimeout(ctx, c.srv.cfg.RequestTimeout)
		res := c.srv.dispatcher.Execute(rctx, req)
		cancel()
		c.sendResult(id, res)
		c.send(wsMessage{ID: id, Type: msgComplete})
		return
	}

	stream, err := c.srv.dispatcher.Subscribe(ctx, req)
	if err != nil {
		c.sendErrors(id, err)
		return
	}
	for res := range stream {
		c.sendResult(id, res)
	}
	// a client-initiated stop needs no complete
	if ctx.Err() == nil {
		c.send(wsMessage{ID: id, Type: msgComplete})
	}
}

func (c *wsSession) stop(id string) {
	c.mu.Lock()
	op, ok := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if ok {
		op.cancel()
	}
}

func (c *wsSession) finish(id string, op *wsOperation) {
	c.mu.Lock()
	if c.ops[id] == op {
		delete(c.ops, id)
	}
	c.mu.Unlock()
	op.cancel()
}

func (c *wsSession) sendResult(id string, res *graphql.Result) {
	typ := msgNext
	if c.legacy {
		typ = msgData
	}
	payload, err := json.Marshal(res)
	if err != nil {
		c.sendErrors(id, err)
		return
	}
	c.send(wsMessage{ID: id, Type: typ, Payload: payload})
}

// sendErrors reports an operation that failed before producing results.
// graphql-transport-ws carries a list of errors, graphql-ws a single one.
func (c *wsSession) sendErrors(id string, err error) {
	if c.legacy {
		c.send(wsMessage{ID: id, Type: msgError, Payload: errorPayload(err)})
		return
	}
	payload, _ := json.Marshal([]gqlerrors.FormattedError{gqlerrors.FormatError(err)})
	c.send(wsMessage{ID: id, Type: msgError, Payload: payload})
}

func errorPayload(err error) json.RawMessage {
	payload, _ := json.Marshal(gqlerrors.FormatError(err))
	return payload
}

func (c *wsSession) send(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log().Debug("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *wsSession) closeWith(code int, text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
	_ = c.conn.Close()
}

func (c *wsSession) close() {
	c.cancel()
	c.wg.Wait()
	_ = c.conn.Close()
	c.log().Debug("websocket session closed")
}
