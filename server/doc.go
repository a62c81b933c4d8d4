// Package server is an embedded HTTP server with WebSocket upgrade.
//
// A Server accepts GET requests and XML-RPC style POSTs to a single path
// (default /rpc2) and upgrades GET requests carrying a registered
// Sec-WebSocket-Protocol to WebSocket. Request parsing and frame decoding
// are incremental and never block; each connection is read by its own
// goroutine and every application callback goes through a dispatcher.
//
// Basic usage:
//
//	q := dispatch.NewQueue()
//	srv := server.New(cfg, app, server.WithDispatcher(q), server.WithLogger(logger))
//	srv.Protocols().Register("echo", echoHandler)
//
//	if err := srv.Start(8080); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
//	go q.Run(ctx)
//
// Replies are sent with Respond for HTTP requests and WriteMessage or
// Broadcast for WebSocket connections.
//
// Lifecycle:
//
// At most Config.MaxConnections clients are registered at once; further
// clients receive 503 and are closed without being registered. Malformed
// requests get 400 (501 for unsupported methods) and the connection is
// closed. Close removes a connection from the table at once, but its
// transport is only closed by the next Tick, which a started server runs
// every Config.TickInterval.
package server
