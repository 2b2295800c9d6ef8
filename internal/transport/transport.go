// Package transport abstracts the two delivery mechanisms for query
// sessions: a persistent duplex WebSocket and a unidirectional SSE stream.
// Both produce the same ordered sequence of raw frames; the session layer
// never needs to know which one is underneath.
package transport

import (
	"context"

	"github.com/lfzhong/excel-agent/internal/protocol"
)

// Transport opens query sessions against the backend.
type Transport interface {
	// Open starts a session for the given request and returns the handle
	// that yields its inbound frames. For the duplex transport the request
	// is written to the shared connection; for SSE the question rides the
	// stream URL. Voice requests are rejected by receive-only transports.
	Open(ctx context.Context, req protocol.Request) (Conn, error)
}

// Conn is the live handle for one open session stream.
type Conn interface {
	// Next blocks until the next raw frame arrives and returns it.
	// It returns io.EOF when the peer completes the stream normally and a
	// transport.* coded error on unexpected closure. Frames are delivered
	// strictly in arrival order.
	Next(ctx context.Context) ([]byte, error)

	// Send submits a request on the same connection. Only the duplex
	// transport supports this; others return transport.send_unsupported.
	Send(req protocol.Request) error

	// Close releases the handle. It is idempotent and safe to call from
	// any state, including concurrently with a blocked Next.
	Close() error
}
