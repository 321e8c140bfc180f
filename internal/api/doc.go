// Package api provides the HTTP REST API and WebSocket server for the
// fireplace daemon.
//
// It exposes the device state snapshot, property commands, raw command
// passthrough, connection status, transition history, and a diagnostics
// export to local clients. A WebSocket hub relays state changes and
// connection transitions in real time.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API is unauthenticated: it binds to the local network and fronts a
// device whose own wire protocol carries no credentials.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
