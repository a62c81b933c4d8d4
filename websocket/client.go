package websocket

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDialer is a dialer with all fields set to the default values.
var DefaultDialer = &Dialer{}

// Dialer contains options for connecting to a WebSocket server. Only
// plain ws:// URLs are supported.
type Dialer struct {
	// NetDialContext specifies the dial function for creating TCP connections.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// HandshakeTimeout specifies the duration for the handshake to complete.
	HandshakeTimeout time.Duration

	// ReadBufferSize specifies the socket read size in bytes.
	ReadBufferSize int

	// Subprotocols specifies the client's requested subprotocols.
	Subprotocols []string
}

// ClientConn is the client side of a WebSocket connection. Frames written
// by a ClientConn are masked, frames read are decoded incrementally.
type ClientConn struct {
	netConn     net.Conn
	br          *bufio.Reader
	subprotocol string

	readBuf []byte
	dec     Decoder
	queue   clientQueue

	writeMu  sync.Mutex
	writeErr error
}

// Dial creates a new client connection to the WebSocket server.
func (d *Dialer) Dial(urlStr string, requestHeader http.Header) (*ClientConn, *http.Response, error) {
	return d.DialContext(context.Background(), urlStr, requestHeader)
}

// DialContext creates a new client connection with the provided context.
// This implements the client-side opening handshake per RFC 6455, section 4.1.
func (d *Dialer) DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*ClientConn, *http.Response, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, nil, err
	}

	if u.Scheme != "ws" {
		return nil, nil, errors.New("websocket: bad scheme")
	}
	u.Scheme = "http"

	if u.Host == "" {
		return nil, nil, errors.New("websocket: empty host")
	}

	hostPort := u.Host
	if u.Port() == "" {
		hostPort = net.JoinHostPort(u.Host, "80")
	}

	var deadline time.Time
	if d.HandshakeTimeout > 0 {
		deadline = time.Now().Add(d.HandshakeTimeout)
	}

	netConn, err := d.dial(ctx, hostPort)
	if err != nil {
		return nil, nil, err
	}

	if !deadline.IsZero() {
		if err := netConn.SetDeadline(deadline); err != nil {
			netConn.Close()
			return nil, nil, err
		}
	}

	conn, resp, err := d.doHandshake(netConn, u, requestHeader)
	if err != nil {
		netConn.Close()
		return nil, resp, err
	}

	if !deadline.IsZero() {
		if err := netConn.SetDeadline(time.Time{}); err != nil {
			conn.Close()
			return nil, resp, err
		}
	}

	return conn, resp, nil
}

func (d *Dialer) dial(ctx context.Context, hostPort string) (net.Conn, error) {
	if d.NetDialContext != nil {
		return d.NetDialContext(ctx, "tcp", hostPort)
	}

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", hostPort)
}

// doHandshake performs the client-side opening handshake per RFC 6455, section 4.1.
func (d *Dialer) doHandshake(netConn net.Conn, u *url.URL, requestHeader http.Header) (*ClientConn, *http.Response, error) {
	challengeKey := generateChallengeKey()

	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}

	for k, vs := range requestHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Set required headers per RFC 6455, section 4.1.
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", challengeKey)
	req.Header.Set("Sec-WebSocket-Version", websocketVersion)

	if len(d.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(d.Subprotocols, ", "))
	}

	if err := req.Write(netConn); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, nil, err
	}

	// Validate server response per RFC 6455, section 4.1.
	if resp.StatusCode != http.StatusSwitchingProtocols {
		defer resp.Body.Close()
		return nil, resp, ErrBadHandshake
	}

	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return nil, resp, ErrBadHandshake
	}

	if !strings.EqualFold(resp.Header.Get("Connection"), "upgrade") {
		return nil, resp, ErrBadHandshake
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != AcceptKey(challengeKey) {
		return nil, resp, ErrBadHandshake
	}

	// The server must pick one of the offered subprotocols, RFC 6455, section 4.2.2.
	subprotocol := resp.Header.Get("Sec-WebSocket-Protocol")
	if subprotocol != "" && len(d.Subprotocols) > 0 && !slices.Contains(d.Subprotocols, subprotocol) {
		return nil, resp, ErrBadHandshake
	}

	readBufferSize := d.ReadBufferSize
	if readBufferSize <= 0 {
		readBufferSize = 4096
	}

	conn := &ClientConn{
		netConn:     netConn,
		br:          br,
		subprotocol: subprotocol,
		readBuf:     make([]byte, readBufferSize),
	}

	return conn, resp, nil
}

// generateChallengeKey returns a base64-encoded 16-byte random nonce
// per RFC 6455, section 4.1. A version 4 UUID supplies the random bytes.
func generateChallengeKey() string {
	key := uuid.New()
	return base64.StdEncoding.EncodeToString(key[:])
}

// Subprotocol returns the subprotocol selected by the server.
func (c *ClientConn) Subprotocol() string {
	return c.subprotocol
}

// WriteMessage writes a single masked frame carrying data.
func (c *ClientConn) WriteMessage(messageType int, data []byte) error {
	if messageType != TextMessage && messageType != BinaryMessage {
		return ErrInvalidMessageType
	}
	return c.writeFrame(buildFrame(messageType, data, true))
}

// WriteControl writes a masked control frame.
func (c *ClientConn) WriteControl(opcode int, data []byte) error {
	if opcode != CloseMessage && opcode != PingMessage && opcode != PongMessage {
		return ErrInvalidControlFrame
	}
	if len(data) > maxControlFramePayloadSize {
		return ErrControlFramePayloadTooBig
	}
	return c.writeFrame(buildFrame(opcode, data, true))
}

// WriteRaw writes pre-encoded bytes to the connection unchanged.
func (c *ClientConn) WriteRaw(p []byte) error {
	return c.writeFrame(p)
}

// WriteClose sends a Close frame with the given code and reason. No
// further frames may be written afterwards.
func (c *ClientConn) WriteClose(code int, text string) error {
	err := c.WriteControl(CloseMessage, FormatCloseMessage(code, text))

	c.writeMu.Lock()
	c.writeErr = ErrWriteToClosedConnection
	c.writeMu.Unlock()

	return err
}

func (c *ClientConn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}

	_, err := c.netConn.Write(frame)
	return err
}

// ReadMessage reads the next data message. Pings are answered with a Pong
// carrying the same payload. A Close frame from the server is returned
// as a *CloseError.
func (c *ClientConn) ReadMessage() (messageType int, p []byte, err error) {
	for {
		if msg, ok := c.queue.pop(); ok {
			return msg.Type, msg.Data, nil
		}

		if err := c.dec.Err(); err != nil {
			return 0, nil, err
		}

		n, readErr := c.br.Read(c.readBuf)
		if n > 0 {
			decErr := c.dec.Decode(c.readBuf[:n], &c.queue)
			for _, ping := range c.queue.takePings() {
				_ = c.WriteControl(PongMessage, ping)
			}
			if decErr != nil && c.queue.empty() {
				return 0, nil, decErr
			}
			continue
		}
		if readErr != nil {
			return 0, nil, readErr
		}
	}
}

// SetReadDeadline sets the read deadline on the underlying network connection.
func (c *ClientConn) SetReadDeadline(t time.Time) error {
	return c.netConn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *ClientConn) Close() error {
	return c.netConn.Close()
}

// clientQueue collects decoder output between socket reads.
type clientQueue struct {
	messages []Message
	pings    [][]byte
}

func (q *clientQueue) HandleMessage(msg Message) { q.messages = append(q.messages, msg) }
func (q *clientQueue) HandlePing(payload []byte) { q.pings = append(q.pings, payload) }
func (q *clientQueue) HandlePong(_ []byte)       {}

func (q *clientQueue) pop() (Message, bool) {
	if len(q.messages) == 0 {
		return Message{}, false
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, true
}

func (q *clientQueue) empty() bool {
	return len(q.messages) == 0
}

func (q *clientQueue) takePings() [][]byte {
	pings := q.pings
	q.pings = nil
	return pings
}
