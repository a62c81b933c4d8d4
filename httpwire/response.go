package httpwire

import (
	"errors"
	"strconv"

	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/rpcws/websocket"
)

// Status is an HTTP status code the server knows how to emit.
type Status int

// Supported response statuses.
const (
	StatusSwitchingProtocols      Status = 101
	StatusOK                      Status = 200
	StatusBadRequest              Status = 400
	StatusNotFound                Status = 404
	StatusRequestTimeout          Status = 408
	StatusNotImplemented          Status = 501
	StatusServiceUnavailable      Status = 503
	StatusHTTPVersionNotSupported Status = 505
)

var statusText = map[Status]string{
	StatusSwitchingProtocols:      "Switching Protocols",
	StatusOK:                      "OK",
	StatusBadRequest:              "Bad Request",
	StatusNotFound:                "Not Found",
	StatusRequestTimeout:          "Request Timeout",
	StatusNotImplemented:          "Not Implemented",
	StatusServiceUnavailable:      "Service Unavailable",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// Text returns the reason phrase, or an empty string for an unsupported status.
func (s Status) Text() string {
	return statusText[s]
}

// ContentType selects the text/* media type of a response body.
type ContentType int

// Supported content types.
const (
	ContentHTML ContentType = iota
	ContentXML
	ContentText
)

var contentTypeName = map[ContentType]string{
	ContentHTML: "text/html",
	ContentXML:  "text/xml",
	ContentText: "text/plain",
}

// String returns the media type.
func (c ContentType) String() string {
	return contentTypeName[c]
}

// Errors returned by the response builders.
var (
	ErrUnknownStatus      = errors.New("httpwire: unknown status")
	ErrUnknownContentType = errors.New("httpwire: unknown content type")
	ErrInvalidServerName  = errors.New("httpwire: invalid server name")
)

// BuildResponse formats a complete HTTP/1.1 response:
//
//	HTTP/1.1 <code> <reason>
//	Server: <server>
//	Content-Type: <type>
//	Content-Length: <len(body)>
//
//	<body>
func BuildResponse(server string, status Status, ct ContentType, body []byte) ([]byte, error) {
	reason, ok := statusText[status]
	if !ok {
		return nil, ErrUnknownStatus
	}
	mediaType, ok := contentTypeName[ct]
	if !ok {
		return nil, ErrUnknownContentType
	}
	if !httpguts.ValidHeaderFieldValue(server) {
		return nil, ErrInvalidServerName
	}

	buf := make([]byte, 0, 128+len(body))
	buf = appendStatusLine(buf, status, reason)
	buf = appendHeader(buf, "Server", server)
	buf = appendHeader(buf, "Content-Type", mediaType)
	buf = appendHeader(buf, "Content-Length", strconv.Itoa(len(body)))
	buf = append(buf, "\r\n"...)
	buf = append(buf, body...)
	return buf, nil
}

var errorPages = map[Status][]byte{}

func init() {
	for _, status := range []Status{
		StatusBadRequest,
		StatusNotFound,
		StatusRequestTimeout,
		StatusNotImplemented,
		StatusServiceUnavailable,
		StatusHTTPVersionNotSupported,
	} {
		line := strconv.Itoa(int(status)) + " " + status.Text()
		errorPages[status] = []byte("<html><head><title>" + line +
			"</title></head><body><h1>" + line + "</h1></body></html>")
	}
}

// ErrorPage returns the canned HTML body used for an error status.
func ErrorPage(status Status) []byte {
	return errorPages[status]
}

// BuildError formats the canned HTML error response for status.
func BuildError(server string, status Status) ([]byte, error) {
	body, ok := errorPages[status]
	if !ok {
		return nil, ErrUnknownStatus
	}
	return BuildResponse(server, status, ContentHTML, body)
}

// BuildHandshake formats the 101 response completing the WebSocket
// opening handshake per RFC 6455, section 4.2.2.
func BuildHandshake(server, challengeKey, protocol string) ([]byte, error) {
	if !httpguts.ValidHeaderFieldValue(server) {
		return nil, ErrInvalidServerName
	}

	buf := make([]byte, 0, 256)
	buf = appendStatusLine(buf, StatusSwitchingProtocols, StatusSwitchingProtocols.Text())
	buf = appendHeader(buf, "Server", server)
	buf = appendHeader(buf, "Upgrade", "websocket")
	buf = appendHeader(buf, "Connection", "Upgrade")
	buf = appendHeader(buf, "Sec-WebSocket-Accept", websocket.AcceptKey(challengeKey))
	if protocol != "" {
		buf = appendHeader(buf, "Sec-WebSocket-Protocol", protocol)
	}
	buf = append(buf, "\r\n"...)
	return buf, nil
}

func appendStatusLine(buf []byte, status Status, reason string) []byte {
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	return append(buf, "\r\n"...)
}

func appendHeader(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	buf = append(buf, value...)
	return append(buf, "\r\n"...)
}
