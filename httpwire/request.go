package httpwire

import (
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Default parser limits.
const (
	DefaultRPCPath          = "/rpc2"
	DefaultMaxLineLength    = 8 << 10
	DefaultMaxContentLength = 1 << 20
)

// ReceivingState is the position of a RequestParser within the request stream.
type ReceivingState uint8

// Receiving states.
const (
	ReceivingHeaders ReceivingState = iota
	ReceivingContent
	Ignoring
	WebSocket
)

func (s ReceivingState) String() string {
	switch s {
	case ReceivingHeaders:
		return "receiving-headers"
	case ReceivingContent:
		return "receiving-content"
	case Ignoring:
		return "ignoring"
	case WebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// RequestType is the kind of request whose headers are being parsed.
type RequestType uint8

// Request types.
const (
	RequestNone RequestType = iota
	RequestGet
	RequestRPC
	RequestWebSocketUpgrade
)

func (t RequestType) String() string {
	switch t {
	case RequestNone:
		return "none"
	case RequestGet:
		return "get"
	case RequestRPC:
		return "rpc"
	case RequestWebSocketUpgrade:
		return "websocket-upgrade"
	default:
		return "unknown"
	}
}

// ProtocolSet reports whether a WebSocket subprotocol name is registered.
type ProtocolSet interface {
	Has(name string) bool
}

// ParserConfig configures a RequestParser. Zero values select the defaults.
type ParserConfig struct {
	// RPCPath is the only target accepted for POST requests.
	RPCPath string

	// Protocols lists the subprotocols a WebSocket upgrade may select.
	Protocols ProtocolSet

	// WebSocket enables upgrade handling. When false the Upgrade and
	// Sec-WebSocket-* headers are ignored like any unknown header.
	WebSocket bool

	// MaxLineLength limits a single request or header line.
	MaxLineLength int

	// MaxContentLength limits the Content-Length of an RPC request.
	MaxContentLength int
}

func (c ParserConfig) withDefaults() ParserConfig {
	if c.RPCPath == "" {
		c.RPCPath = DefaultRPCPath
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	return c
}

// Handler receives the requests a RequestParser completes.
type Handler interface {
	// HandleGet is called once the headers of a GET request are complete.
	HandleGet(uri string)

	// HandleRPC is called once the body of a POST to the RPC path is complete.
	// The handler owns body.
	HandleRPC(body []byte)

	// HandleUpgrade is called for a valid WebSocket upgrade request. It must
	// write the handshake response; a non-nil error leaves the parser ignoring
	// input.
	HandleUpgrade(key, protocol string) error

	// HandleError is called once when the request is rejected. The parser
	// ignores all further input; the caller is expected to send the error
	// response and close the connection.
	HandleError(status Status)
}

// RequestParser is the incremental HTTP/1.x request state machine of one
// connection. Input may be split at any byte boundary; requests on the same
// connection are parsed one after another. A RequestParser is not safe for
// concurrent use.
type RequestParser struct {
	cfg ParserConfig

	state   ReceivingState
	reqType RequestType
	started bool

	line      []byte
	uri       string
	content   []byte
	length    int
	remaining int

	key      string
	protocol string
}

// NewRequestParser returns a parser waiting for a request line.
func NewRequestParser(cfg ParserConfig) *RequestParser {
	return &RequestParser{cfg: cfg.withDefaults()}
}

// State returns the current receiving state.
func (p *RequestParser) State() ReceivingState {
	return p.state
}

// Type returns the type of the request in progress.
func (p *RequestParser) Type() RequestType {
	return p.reqType
}

// Feed parses data and reports completed requests to h. It returns the
// number of bytes consumed. Fewer than len(data) bytes are consumed only
// when the connection switched to WebSocket inside data; the rest of data
// is the first input of the WebSocket framer.
func (p *RequestParser) Feed(data []byte, h Handler) int {
	i := 0
	for i < len(data) {
		switch p.state {
		case ReceivingHeaders:
			p.scan(data[i], h)
			i++

		case ReceivingContent:
			n := min(p.remaining, len(data)-i)
			p.content = append(p.content, data[i:i+n]...)
			p.remaining -= n
			i += n

			if p.remaining == 0 {
				body := p.content
				p.reset()
				h.HandleRPC(body)
			}

		case Ignoring:
			return len(data)

		case WebSocket:
			return i
		}
	}
	return i
}

func (p *RequestParser) scan(b byte, h Handler) {
	pendingCR := len(p.line) > 0 && p.line[len(p.line)-1] == '\r'

	switch {
	case b == 0:
		p.fail(h, StatusBadRequest)
	case b == '\r':
		if pendingCR {
			p.fail(h, StatusBadRequest)
			return
		}
		p.line = append(p.line, b)
	case b == '\n':
		if !pendingCR {
			p.fail(h, StatusBadRequest)
			return
		}
		line := string(p.line[:len(p.line)-1])
		p.line = p.line[:0]
		p.parseLine(line, h)
	case pendingCR:
		p.fail(h, StatusBadRequest)
	default:
		if len(p.line) >= p.cfg.MaxLineLength {
			p.fail(h, StatusBadRequest)
			return
		}
		p.line = append(p.line, b)
	}
}

func (p *RequestParser) parseLine(line string, h Handler) {
	if line == "" {
		p.endOfHeaders(h)
		return
	}

	if !p.started {
		p.started = true
		p.parseRequestLine(line, h)
		return
	}

	p.parseHeaderLine(line, h)
}

func (p *RequestParser) parseRequestLine(line string, h Handler) {
	method, rest := NextToken(line)

	// The target runs to the next space so query strings keep their
	// separators.
	rest = strings.TrimLeft(rest, " \t")
	target, rest, _ := strings.Cut(rest, " ")
	version, rest := NextToken(rest)

	switch strings.ToUpper(method) {
	case "GET":
		if target == "" {
			p.fail(h, StatusBadRequest)
			return
		}
		p.reqType = RequestGet
	case "POST":
		if target != p.cfg.RPCPath {
			p.fail(h, StatusBadRequest)
			return
		}
		p.reqType = RequestRPC
	default:
		p.fail(h, StatusNotImplemented)
		return
	}

	if status, ok := checkVersion(version, rest); !ok {
		p.fail(h, status)
		return
	}

	p.uri = target
}

func checkVersion(version, rest string) (Status, bool) {
	if strings.TrimLeft(rest, " \t") != "" {
		return StatusBadRequest, false
	}

	upper := strings.ToUpper(version)
	switch {
	case upper == "HTTP/1.0" || upper == "HTTP/1.1":
		return StatusOK, true
	case strings.HasPrefix(upper, "HTTP/") && len(upper) > len("HTTP/"):
		return StatusHTTPVersionNotSupported, false
	default:
		return StatusBadRequest, false
	}
}

func (p *RequestParser) parseHeaderLine(line string, h Handler) {
	name, rest := NextToken(line)
	colon, rest := NextToken(rest)
	if colon != ":" {
		return
	}

	switch strings.ToLower(name) {
	case "content-length":
		if p.reqType != RequestRPC {
			p.fail(h, StatusBadRequest)
			return
		}
		value, tail := NextToken(rest)
		n, err := strconv.ParseUint(value, 10, 31)
		if err != nil || n == 0 || int(n) > p.cfg.MaxContentLength || strings.TrimLeft(tail, " \t") != "" {
			p.fail(h, StatusBadRequest)
			return
		}
		p.length = int(n)

	case "content-type":
		if p.reqType != RequestRPC {
			p.fail(h, StatusBadRequest)
			return
		}
		if value, _ := NextToken(rest); !strings.EqualFold(value, "text/xml") {
			p.fail(h, StatusBadRequest)
		}

	case "upgrade":
		if !p.cfg.WebSocket || !httpguts.HeaderValuesContainsToken([]string{rest}, "websocket") {
			return
		}
		if p.reqType != RequestGet && p.reqType != RequestWebSocketUpgrade {
			p.fail(h, StatusBadRequest)
			return
		}
		p.reqType = RequestWebSocketUpgrade

	case "sec-websocket-protocol":
		if !p.cfg.WebSocket {
			return
		}
		p.protocol = ""
		for _, name := range Tokens(rest) {
			if p.cfg.Protocols != nil && p.cfg.Protocols.Has(name) {
				p.protocol = name
				break
			}
		}
		if p.protocol == "" {
			p.fail(h, StatusBadRequest)
		}

	case "sec-websocket-key":
		// Base64 uses '=' and '/', so the key is taken verbatim.
		if p.cfg.WebSocket {
			p.key = strings.Trim(rest, " \t")
		}
	}
}

func (p *RequestParser) endOfHeaders(h Handler) {
	switch p.reqType {
	case RequestGet:
		uri := p.uri
		p.reset()
		h.HandleGet(uri)

	case RequestRPC:
		if p.length == 0 {
			p.fail(h, StatusBadRequest)
			return
		}
		p.state = ReceivingContent
		p.remaining = p.length
		p.content = make([]byte, 0, p.length)

	case RequestWebSocketUpgrade:
		if p.key == "" || p.protocol == "" {
			p.fail(h, StatusBadRequest)
			return
		}
		key, protocol := p.key, p.protocol
		p.reset()
		p.line = nil
		if err := h.HandleUpgrade(key, protocol); err != nil {
			p.state = Ignoring
			return
		}
		p.state = WebSocket

	default:
		p.fail(h, StatusBadRequest)
	}
}

func (p *RequestParser) fail(h Handler, status Status) {
	p.reset()
	p.line = nil
	p.state = Ignoring
	h.HandleError(status)
}

func (p *RequestParser) reset() {
	p.state = ReceivingHeaders
	p.reqType = RequestNone
	p.started = false
	p.line = p.line[:0]
	p.uri = ""
	p.content = nil
	p.length = 0
	p.remaining = 0
	p.key = ""
	p.protocol = ""
}
