// Package httpwire implements the HTTP/1.x subset spoken by the rpcws server:
// an incremental request parser, response formatting and the header line
// tokenizer both are built on.
//
// The parser is a byte-driven state machine. Feed may be called with input
// split at arbitrary points; completed requests are reported through a
// Handler:
//
//	p := httpwire.NewRequestParser(httpwire.ParserConfig{
//	    Protocols: protocols,
//	    WebSocket: true,
//	})
//
//	n := p.Feed(buf, handler)
//	if p.State() == httpwire.WebSocket {
//	    // buf[n:] is the first WebSocket input.
//	}
//
// Only GET requests, POST requests to the RPC path (default /rpc2) and
// WebSocket upgrades are accepted. Any violation is reported once through
// Handler.HandleError, after which the parser drops all input.
package httpwire
