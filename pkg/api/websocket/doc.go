// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/orchestrations/:id/ws and receive a snapshot
// of the execution followed by its lifecycle events. The server closes the
// stream once the execution reaches a terminal state.
package websocket
