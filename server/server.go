package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/vitalvas/rpcws/dispatch"
	"github.com/vitalvas/rpcws/httpwire"
	"github.com/vitalvas/rpcws/websocket"
)

// Errors returned by Server.
var (
	ErrAlreadyStarted    = errors.New("server: already started")
	ErrUnknownConnection = errors.New("server: unknown connection")
	ErrNotWebSocket      = errors.New("server: connection is not a websocket")
	ErrUpgraded          = errors.New("server: connection was upgraded to websocket")
	ErrInvalidProtocol   = errors.New("server: invalid protocol name")
	ErrNilHandler        = errors.New("server: nil protocol handler")
)

// Server is an embedded HTTP server for GET requests and XML-RPC posts
// that upgrades connections to WebSocket on request.
//
// The connection table is bounded by Config.MaxConnections; a client
// arriving at capacity gets 503 and is never registered. Closed
// connections are removed from the table immediately, their transports
// are closed by the next Tick.
type Server struct {
	cfg        Config
	listener   Listener
	logger     *slog.Logger
	dispatcher dispatch.Dispatcher
	protocols  *Protocols

	mu      sync.Mutex
	conns   map[int64]*Connection
	nextID  int64
	ln      net.Listener
	started bool
	cancel  context.CancelFunc

	loops   sync.WaitGroup
	readers sync.WaitGroup

	reaper reaper
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards all records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher sets where Listener and ProtocolHandler callbacks run.
// The default runs them inline on the connection goroutine.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(s *Server) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithProtocols shares an existing protocol registry with the server.
func WithProtocols(p *Protocols) Option {
	return func(s *Server) {
		if p != nil {
			s.protocols = p
		}
	}
}

// New creates a server. A nil listener ignores all events.
func New(cfg Config, l Listener, opts ...Option) *Server {
	if l == nil {
		l = NopListener{}
	}

	s := &Server{
		cfg:        cfg.withDefaults(),
		listener:   l,
		logger:     slog.New(slog.DiscardHandler),
		dispatcher: dispatch.Inline{},
		protocols:  NewProtocols(),
		conns:      make(map[int64]*Connection),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Protocols returns the subprotocol registry consulted at handshake time.
func (s *Server) Protocols() *Protocols {
	return s.protocols
}

// Start listens on port (0 picks a free port) and starts accepting
// connections. The result is returned and also reported through
// Listener.OnStartResult.
func (s *Server) Start(port int) error {
	result, err := s.start(port)
	s.post(func() { s.listener.OnStartResult(result) })
	return err
}

func (s *Server) start(port int) (StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return StartAlreadyStarted, ErrAlreadyStarted
	}

	if err := s.cfg.Validate(); err != nil {
		return StartFailed, fmt.Errorf("server: %w", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)))
	if err != nil {
		s.logger.Error("listen failed", "port", port, "error", err)
		return StartFailed, fmt.Errorf("server: listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ln = ln
	s.cancel = cancel
	s.started = true

	s.loops.Add(2)
	go s.acceptLoop(ln)
	go s.tickLoop(ctx)

	s.logger.Info("listening", "addr", ln.Addr().String())
	return StartOK, nil
}

// Addr returns the listening address, or nil when the server is not
// started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and every connection and waits for the server
// goroutines to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ln, cancel := s.ln, s.cancel
	s.ln, s.cancel = nil, nil
	s.mu.Unlock()

	cancel()
	_ = ln.Close()
	s.loops.Wait()

	for _, id := range s.ids() {
		_ = s.Close(id, false)
	}

	// Read loops exit once their transports are closed. Keep reaping until
	// they are all gone since a loop may close its own connection late.
	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()

	for {
		s.Tick()
		select {
		case <-done:
			s.Tick()
			s.logger.Info("stopped")
			return
		case <-time.After(s.cfg.TickInterval):
		}
	}
}

// OnAccept registers a new client. At capacity it writes 503 on t, closes
// it and returns false without registering anything.
func (s *Server) OnAccept(t Transport) (int64, bool) {
	remote := ""
	if addr := t.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	s.mu.Lock()
	if len(s.conns) >= s.cfg.MaxConnections {
		s.mu.Unlock()

		s.logger.Warn("connection limit reached", "remote", remote, "limit", s.cfg.MaxConnections)
		if resp, err := httpwire.BuildError(s.cfg.ServerName, httpwire.StatusServiceUnavailable); err == nil {
			_, _ = t.Write(resp)
		}
		_ = t.Close()
		return 0, false
	}

	s.nextID++
	c := &Connection{
		srv:        s,
		id:         s.nextID,
		remoteAddr: remote,
		transport:  t,
		parser: httpwire.NewRequestParser(httpwire.ParserConfig{
			RPCPath:          s.cfg.RPCPath,
			Protocols:        s.protocols,
			WebSocket:        !s.cfg.DisableWebSocket,
			MaxLineLength:    s.cfg.MaxLineLength,
			MaxContentLength: s.cfg.MaxContentLength,
		}),
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	s.logger.Debug("client connected", "id", c.id, "remote", remote)
	s.post(func() { s.listener.OnClientConnected(c.id, remote) })
	return c.id, true
}

// OnData feeds bytes received from the client. Calls for one connection
// must not overlap.
func (s *Server) OnData(id int64, p []byte) error {
	c, ok := s.conn(id)
	if !ok {
		return ErrUnknownConnection
	}
	c.feed(p)
	return nil
}

// Close removes a connection. A WebSocket connection's handler gets
// OnClosed first, then the listener gets OnClientDisconnected. The
// transport is closed by the next Tick.
func (s *Server) Close(id int64, graceful bool) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	var deferred bool
	if ok {
		delete(s.conns, id)
		if c.upgrading {
			c.closePending, c.closeGraceful = true, graceful
			deferred = true
		}
	}
	s.mu.Unlock()

	if !ok {
		return ErrUnknownConnection
	}
	if !deferred {
		s.finishClose(c, graceful)
	}
	return nil
}

// finishClose posts the close events of a connection already removed
// from the table and hands its transport to the reaper.
func (s *Server) finishClose(c *Connection, graceful bool) {
	id := c.id
	if ws := c.ws.Load(); ws != nil {
		s.post(func() { ws.handler.OnClosed(id, graceful) })
	}
	s.post(func() { s.listener.OnClientDisconnected(id) })
	s.reaper.add(c.transport)

	s.logger.Debug("client disconnected", "id", id, "graceful", graceful)
}

// Tick closes the transports of connections closed since the last call.
// A started server calls it every Config.TickInterval.
func (s *Server) Tick() {
	for _, t := range s.reaper.drain() {
		if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("transport close", "error", err)
		}
	}
}

// Len returns the number of registered connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Conn returns the record of a registered connection.
func (s *Server) Conn(id int64) (*Connection, bool) {
	return s.conn(id)
}

// Respond sends an HTTP response on a connection that has not been
// upgraded.
func (s *Server) Respond(id int64, status httpwire.Status, ct httpwire.ContentType, body []byte) error {
	c, ok := s.conn(id)
	if !ok {
		return ErrUnknownConnection
	}
	if c.IsWebSocket() {
		return ErrUpgraded
	}

	resp, err := httpwire.BuildResponse(s.cfg.ServerName, status, ct, body)
	if err != nil {
		return err
	}
	return c.write(resp)
}

// WriteMessage sends one unfragmented data frame on a WebSocket connection.
func (s *Server) WriteMessage(id int64, messageType int, data []byte) error {
	c, ok := s.conn(id)
	if !ok {
		return ErrUnknownConnection
	}
	if !c.IsWebSocket() {
		return ErrNotWebSocket
	}

	frame, err := websocket.EncodeMessage(messageType, data)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Broadcast sends one data frame to every WebSocket connection bound to
// protocol and returns how many writes succeeded. The frame is encoded
// once.
func (s *Server) Broadcast(protocol string, messageType int, data []byte) (int, error) {
	pm, err := websocket.NewPreparedMessage(messageType, data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	targets := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		if ws := c.ws.Load(); ws != nil && ws.protocol == protocol {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if c.write(pm.Frame()) == nil {
			sent++
		}
	}
	return sent, nil
}

func (s *Server) conn(id int64) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	return c, ok
}

func (s *Server) registered(c *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[c.id] == c
}

func (s *Server) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) post(fn func()) {
	s.dispatcher.Post(fn)
}

// rejectRequest answers with a canned error page and closes the
// connection gracefully.
func (s *Server) rejectRequest(c *Connection, status httpwire.Status) {
	c.session.Store(uint32(IgnorePending))
	s.logger.Debug("request rejected", "id", c.id, "remote", c.remoteAddr, "status", int(status))

	if resp, err := httpwire.BuildError(s.cfg.ServerName, status); err == nil {
		_ = c.write(resp)
	}
	_ = s.Close(c.id, true)
}

// expire closes a connection that stayed silent past Config.IdleTimeout.
func (s *Server) expire(id int64) {
	c, ok := s.conn(id)
	if !ok {
		return
	}

	s.logger.Debug("idle timeout", "id", id)
	if c.IsWebSocket() {
		_ = c.write(websocket.CloseFrame())
		_ = s.Close(id, true)
		return
	}
	s.rejectRequest(c, httpwire.StatusRequestTimeout)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.loops.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			// Back off on errors like EMFILE instead of spinning.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			s.logger.Warn("accept failed", "error", err, "retry", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		id, ok := s.OnAccept(conn)
		if !ok {
			continue
		}

		s.readers.Add(1)
		go s.readLoop(id, conn)
	}
}

func (s *Server) readLoop(id int64, conn net.Conn) {
	defer s.readers.Done()

	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if errors.Is(s.OnData(id, buf[:n]), ErrUnknownConnection) {
				return
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.expire(id)
				return
			}
			_ = s.Close(id, false)
			return
		}
	}
}

func (s *Server) tickLoop(ctx context.Context) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
