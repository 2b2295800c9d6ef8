package transport

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/lfzhong/excel-agent/internal/errors"
	"github.com/lfzhong/excel-agent/internal/protocol"
)

// DefaultReconnectDelay is the fixed pause between reconnection attempts
// after an unexpected connection loss.
const DefaultReconnectDelay = 3 * time.Second

// WebSocketConfig holds configuration for the duplex transport.
type WebSocketConfig struct {
	// URL is the WebSocket endpoint, e.g. ws://127.0.0.1:8000/ws.
	URL string

	// ReconnectDelay is the constant backoff between redial attempts.
	// Defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// Dialer allows overriding the gorilla dialer (TLS settings, timeouts).
	// Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// WebSocket is the duplex transport. Each Open dials (or claims a standby
// connection kept warm by the reconnect loop), writes the request, and
// returns the session handle for the inbound frame stream.
//
// Reconnection policy: when a connection is lost unexpectedly, a background
// loop re-dials with a constant delay, indefinitely, until the transport is
// closed. Unacknowledged requests are never replayed; the caller must
// resubmit on a fresh session.
type WebSocket struct {
	cfg WebSocketConfig

	mu        sync.Mutex
	standby   *websocket.Conn
	closed    bool
	redialing bool
}

// NewWebSocket creates the duplex transport for the given endpoint.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &WebSocket{cfg: cfg}
}

// Open dials the endpoint (or claims the standby connection) and submits
// the request. The returned handle yields frames until the peer closes.
func (t *WebSocket) Open(ctx context.Context, req protocol.Request) (Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New(errors.CodeTransportClosed, "transport is closed")
	}
	conn := t.standby
	t.standby = nil
	t.mu.Unlock()

	if conn == nil {
		dialed, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.URL, nil)
		if err != nil {
			return nil, errors.Wrap(errors.CodeTransportConnectFailed, "failed to dial "+t.cfg.URL, err)
		}
		conn = dialed
	}

	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		conn.Close()
		t.noteFailure()
		return nil, errors.Wrap(errors.CodeTransportSendFailed, "failed to submit request", err)
	}

	s := &wsSession{
		transport: t,
		conn:      conn,
		inbound:   make(chan frameResult),
		done:      make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// Close tears down the transport: the standby connection is closed and the
// reconnect loop, if running, stops on its next attempt. Idempotent.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.standby != nil {
		t.standby.Close()
		t.standby = nil
	}
	return nil
}

// noteFailure records an unexpected connection loss and starts the redial
// loop if one isn't already running.
func (t *WebSocket) noteFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.redialing {
		return
	}
	t.redialing = true
	go t.redial()
}

// redial re-opens the connection with a constant backoff, indefinitely,
// and parks the result as the standby for the next Open.
func (t *WebSocket) redial() {
	errStop := errors.New(errors.CodeTransportClosed, "transport closed during reconnect")

	attempt := func() error {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return backoff.Permanent(errStop)
		}
		t.mu.Unlock()

		conn, _, err := t.cfg.Dialer.Dial(t.cfg.URL, nil)
		if err != nil {
			log.Printf("Reconnect to %s failed: %v", t.cfg.URL, err)
			return err
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			conn.Close()
			return backoff.Permanent(errStop)
		}
		t.standby = conn
		t.redialing = false
		log.Printf("Reconnected to %s", t.cfg.URL)
		return nil
	}

	if err := backoff.Retry(attempt, backoff.NewConstantBackOff(t.cfg.ReconnectDelay)); err != nil {
		t.mu.Lock()
		t.redialing = false
		t.mu.Unlock()
	}
}

type frameResult struct {
	data []byte
	err  error
}

// wsSession is one open session stream over a dedicated connection.
type wsSession struct {
	transport *WebSocket
	conn      *websocket.Conn
	inbound   chan frameResult
	done      chan struct{}

	// writeMu serializes frame writes; the connection permits only one
	// concurrent writer, and Send and Close can race.
	writeMu    sync.Mutex
	closeOnce  sync.Once
	localClose atomic.Bool
}

// readPump reads frames off the connection into the inbound channel until
// the connection fails or the session is closed. Runs in its own goroutine;
// it is the connection's sole reader.
func (s *wsSession) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			res := frameResult{err: s.classifyReadError(err)}
			select {
			case s.inbound <- res:
			case <-s.done:
			}
			close(s.inbound)
			return
		}
		select {
		case s.inbound <- frameResult{data: data}:
		case <-s.done:
			close(s.inbound)
			return
		}
	}
}

// classifyReadError maps a read failure to the session-visible error.
// A close initiated locally or a normal peer close ends the stream with
// io.EOF; anything else is an unexpected loss that also arms the
// transport's reconnect loop.
func (s *wsSession) classifyReadError(err error) error {
	if s.localClose.Load() {
		return io.EOF
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	s.transport.noteFailure()
	return errors.ConnectionLost(err)
}

func (s *wsSession) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-s.inbound:
		if !ok {
			return nil, io.EOF
		}
		return res.data, res.err
	}
}

func (s *wsSession) Send(req protocol.Request) error {
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		if !s.localClose.Load() {
			s.transport.noteFailure()
		}
		return errors.Wrap(errors.CodeTransportSendFailed, "failed to send request", err)
	}
	return nil
}

// Close releases the session and its connection. Safe to call repeatedly
// and from any state, including while Next is blocked or a Send is in
// flight.
func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		s.localClose.Store(true)
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.writeMu.Unlock()
	})
	return nil
}
