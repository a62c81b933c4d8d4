package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vitalvas/rpcws/httpwire"
	"github.com/vitalvas/rpcws/websocket"
)

// SessionState tracks whether a connection is about to be closed after
// an error response.
type SessionState uint32

// Session states.
const (
	Unsessioned SessionState = iota
	IgnorePending
)

func (s SessionState) String() string {
	switch s {
	case Unsessioned:
		return "unsessioned"
	case IgnorePending:
		return "ignore-pending"
	default:
		return "unknown"
	}
}

// Connection is the server-side record of one client.
//
// The parser and decoder are owned by the goroutine feeding OnData. The
// WebSocket state is published atomically at upgrade time so writers on
// other goroutines can tell HTTP and WebSocket connections apart.
type Connection struct {
	srv        *Server
	id         int64
	remoteAddr string
	transport  Transport

	session atomic.Uint32
	parser  *httpwire.RequestParser
	ws      atomic.Pointer[wsState]

	// Guarded by srv.mu. A Close that lands while OnUpgrade is being
	// posted is finished by the upgrading goroutine.
	upgrading     bool
	closePending  bool
	closeGraceful bool

	writeMu sync.Mutex
}

type wsState struct {
	protocol string
	handler  ProtocolHandler
	key      string
	decoder  websocket.Decoder
}

// ID returns the connection id.
func (c *Connection) ID() int64 {
	return c.id
}

// RemoteAddr returns the peer address, or an empty string if unknown.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Session returns the session state.
func (c *Connection) Session() SessionState {
	return SessionState(c.session.Load())
}

// Protocol returns the negotiated subprotocol, or an empty string before
// the connection is upgraded.
func (c *Connection) Protocol() string {
	if ws := c.ws.Load(); ws != nil {
		return ws.protocol
	}
	return ""
}

// HandshakeKey returns the Sec-WebSocket-Key the client sent, or an empty
// string before the connection is upgraded.
func (c *Connection) HandshakeKey() string {
	if ws := c.ws.Load(); ws != nil {
		return ws.key
	}
	return ""
}

// IsWebSocket reports whether the connection has been upgraded.
func (c *Connection) IsWebSocket() bool {
	return c.ws.Load() != nil
}

func (c *Connection) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.transport.Write(p)
	if err != nil {
		c.srv.logger.Warn("write failed", "id", c.id, "remote", c.remoteAddr, "error", err)
	}
	return err
}

// feed routes inbound bytes to the HTTP parser or, after an upgrade, to
// the frame decoder. Bytes following the upgrade request in the same read
// go to the decoder.
func (c *Connection) feed(p []byte) {
	if ws := c.ws.Load(); ws != nil {
		c.decode(ws, p)
		return
	}

	n := c.parser.Feed(p, (*httpEvents)(c))
	if n < len(p) {
		if ws := c.ws.Load(); ws != nil && c.srv.registered(c) {
			c.decode(ws, p[n:])
		}
	}
}

func (c *Connection) decode(ws *wsState, p []byte) {
	err := ws.decoder.Decode(p, (*frameEvents)(c))
	if err == nil {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.srv.logger.Debug("peer sent close", "id", c.id, "code", closeErr.Code, "reason", closeErr.Text)
	} else {
		c.srv.logger.Warn("websocket protocol error", "id", c.id, "remote", c.remoteAddr, "error", err)
	}

	_ = c.write(websocket.CloseFrame())
	_ = c.srv.Close(c.id, true)
}

// httpEvents receives the events of the connection's request parser.
type httpEvents Connection

func (e *httpEvents) HandleGet(uri string) {
	c := (*Connection)(e)
	c.srv.post(func() { c.srv.listener.OnGetRequest(c.id, uri) })
}

func (e *httpEvents) HandleRPC(body []byte) {
	c := (*Connection)(e)
	c.srv.post(func() { c.srv.listener.OnRPCRequest(c.id, body) })
}

func (e *httpEvents) HandleUpgrade(key, protocol string) error {
	c := (*Connection)(e)
	s := c.srv

	handler, ok := s.protocols.Lookup(protocol)
	if !ok {
		s.rejectRequest(c, httpwire.StatusBadRequest)
		return ErrInvalidProtocol
	}

	resp, err := httpwire.BuildHandshake(s.cfg.ServerName, key, protocol)
	if err != nil {
		s.logger.Error("build handshake", "id", c.id, "error", err)
		_ = s.Close(c.id, false)
		return err
	}
	if err := c.write(resp); err != nil {
		_ = s.Close(c.id, false)
		return err
	}

	s.mu.Lock()
	if s.conns[c.id] != c {
		s.mu.Unlock()
		s.logger.Debug("closed during handshake", "id", c.id)
		return ErrUnknownConnection
	}
	c.ws.Store(&wsState{
		protocol: protocol,
		handler:  handler,
		key:      key,
		decoder: websocket.Decoder{
			RequireMask:    true,
			MaxMessageSize: s.cfg.MaxMessageSize,
		},
	})
	c.upgrading = true
	s.mu.Unlock()

	s.logger.Debug("upgraded", "id", c.id, "protocol", protocol)
	s.post(func() { handler.OnUpgrade(c.id) })

	s.mu.Lock()
	c.upgrading = false
	pending, graceful := c.closePending, c.closeGraceful
	s.mu.Unlock()

	if pending {
		s.finishClose(c, graceful)
	}
	return nil
}

func (e *httpEvents) HandleError(status httpwire.Status) {
	c := (*Connection)(e)
	c.srv.rejectRequest(c, status)
}

// frameEvents receives the events of the connection's frame decoder.
type frameEvents Connection

func (e *frameEvents) HandleMessage(msg websocket.Message) {
	c := (*Connection)(e)
	ws := c.ws.Load()
	c.srv.post(func() { ws.handler.OnReceive(c.id, msg) })
}

func (e *frameEvents) HandlePing(payload []byte) {
	c := (*Connection)(e)
	frame, err := websocket.EncodeControl(websocket.PongMessage, payload)
	if err != nil {
		return
	}
	_ = c.write(frame)
}

func (e *frameEvents) HandlePong([]byte) {}
