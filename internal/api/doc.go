// Package api implements the HTTP server for rrconverter.
//
// This package provides:
//   - The subscriber feed: GET /ws upgrades to a WebSocket and streams every
//     hub message as one JSON text frame
//   - Health and status endpoints under /api/v1
//   - Prometheus exposition at /metrics
//   - Middleware stack (request ID, logging, recovery)
//
// # Subscriber Feed
//
// Each WebSocket client gets its own hub subscription, so a slow client only
// loses its own oldest messages. Two goroutines serve a client: a read pump
// that keeps the connection alive and notices when the peer goes away, and a
// delivery loop that writes messages in order. The first failed write ends
// the delivery loop and releases the subscription.
//
// Clients receive either a passing object or a connectivity event:
//
//	{"passing_number":"12","transponder":"TAG1",...}
//	{"event":"disconnected"}
//
// Messages published before a client connected are never replayed.
package api
