package server

import (
	"net"

	"github.com/vitalvas/rpcws/websocket"
)

// Transport is the byte stream of one client. net.Conn satisfies it.
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// StartResult is the outcome of Server.Start.
type StartResult int

// Start results.
const (
	StartOK StartResult = iota
	StartAlreadyStarted
	StartFailed
)

func (r StartResult) String() string {
	switch r {
	case StartOK:
		return "ok"
	case StartAlreadyStarted:
		return "already-started"
	case StartFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Listener receives server and HTTP request events. Calls are made
// through the server's dispatcher, never from a connection goroutine
// directly unless the dispatcher runs callbacks inline.
type Listener interface {
	OnStartResult(result StartResult)
	OnClientConnected(id int64, remoteAddr string)
	OnClientDisconnected(id int64)

	// OnGetRequest is called for every GET request. Reply with Server.Respond.
	OnGetRequest(id int64, uri string)

	// OnRPCRequest is called with the body of every POST to the RPC path.
	// Reply with Server.Respond.
	OnRPCRequest(id int64, body []byte)
}

// ProtocolHandler receives the events of WebSocket connections bound to
// one subprotocol.
type ProtocolHandler interface {
	OnUpgrade(id int64)
	OnReceive(id int64, msg websocket.Message)
	OnClosed(id int64, graceful bool)
}

// NopListener ignores every event. Embed it to implement only part of
// Listener.
type NopListener struct{}

func (NopListener) OnStartResult(StartResult)       {}
func (NopListener) OnClientConnected(int64, string) {}
func (NopListener) OnClientDisconnected(int64)      {}
func (NopListener) OnGetRequest(int64, string)      {}
func (NopListener) OnRPCRequest(int64, []byte)      {}
