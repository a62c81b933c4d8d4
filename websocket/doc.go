// Package websocket implements the framing layer of the WebSocket protocol
// defined in RFC 6455 for an event-driven server.
//
// This package provides:
//   - An incremental frame Decoder that accepts input split at any byte
//     boundary and reassembles fragmented messages
//   - Frame encoding for server-to-client messages (EncodeMessage,
//     EncodeControl, CloseFrame) and PreparedMessage for broadcasting
//   - The handshake accept key computation (AcceptKey)
//   - A minimal client (Dialer, ClientConn) for plain ws:// endpoints
//
// Decoding Example:
//
//	dec := &websocket.Decoder{RequireMask: true, MaxMessageSize: 1 << 20}
//
//	for {
//	    n, err := conn.Read(buf)
//	    if err != nil {
//	        return
//	    }
//	    if err := dec.Decode(buf[:n], handler); err != nil {
//	        conn.Write(websocket.CloseFrame())
//	        return
//	    }
//	}
//
// The handler receives every complete message exactly once, no matter how
// the input was split. Continuation frames are appended to the message in
// progress; control frames (Ping, Pong, Close) may be interleaved with
// them and are reported separately.
//
// Client Example:
//
//	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:8080/", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	err = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Concurrency:
//
// A Decoder must be driven by one goroutine at a time. ClientConn supports
// one concurrent reader and any number of writers.
package websocket
