// Package websocket provides real-time execution progress via WebSocket.
//
// Clients connect to /api/v1/executions/:id/ws and receive the same JSON
// payloads as the SSE stream, one per text frame.
package websocket
