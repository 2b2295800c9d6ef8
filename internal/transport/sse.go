package transport

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/lfzhong/excel-agent/internal/errors"
	"github.com/lfzhong/excel-agent/internal/protocol"
)

// SSEConfig holds configuration for the unidirectional transport.
type SSEConfig struct {
	// URL is the streaming query endpoint, e.g. http://127.0.0.1:8000/query.
	// The question is appended as a URL-encoded query parameter.
	URL string

	// Client allows overriding the HTTP client. Defaults to http.DefaultClient.
	Client *http.Client
}

// SSE is the unidirectional transport: one HTTP GET per session, with the
// response body parsed as a Server-Sent-Events stream. It cannot carry
// voice requests and does not support sending on an open session.
type SSE struct {
	cfg SSEConfig
}

// NewSSE creates the unidirectional transport for the given endpoint.
func NewSSE(cfg SSEConfig) *SSE {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &SSE{cfg: cfg}
}

// Open issues the streaming GET for a text question. Voice requests are
// rejected: there is no request body to carry the audio payload.
func (t *SSE) Open(ctx context.Context, req protocol.Request) (Conn, error) {
	if req.IsVoice() {
		return nil, errors.New(errors.CodeVoiceUnsupported, "voice requests require the duplex transport")
	}

	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return nil, errors.Wrap(errors.CodeTransportConnectFailed, "invalid stream URL", err)
	}
	q := u.Query()
	q.Set("question", req.Question)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeTransportConnectFailed, "failed to build stream request", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.cfg.Client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.CodeTransportConnectFailed, "failed to open stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errors.New(errors.CodeTransportBadStatus,
			"stream request failed: status "+resp.Status+": "+strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)

	return &sseSession{body: resp.Body, scanner: scanner}, nil
}

// sseSession reads one event-stream response body. Events are delimited by
// blank lines; multiple data: lines within one event are joined with
// newlines per the SSE format.
type sseSession struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (s *sseSession) Next(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := s.scanEvent()
		ch <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		// Unblock the pending scan; the session is unusable afterwards.
		s.Close()
		return nil, ctx.Err()
	case res := <-ch:
		return res.data, res.err
	}
}

// scanEvent reads lines until one complete event is assembled.
func (s *sseSession) scanEvent() ([]byte, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			// Comment / keep-alive line.
			continue
		}
		if strings.HasPrefix(line, "data:") {
			part := strings.TrimPrefix(line, "data:")
			if strings.HasPrefix(part, " ") {
				part = part[1:]
			}
			dataLines = append(dataLines, part)
		}
		// event:/id:/retry: fields are not used by the backend; skip.
	}

	if len(dataLines) > 0 {
		// Stream ended without a trailing blank line; flush the last event.
		return []byte(strings.Join(dataLines, "\n")), nil
	}

	if err := s.scanner.Err(); err != nil {
		s.mu.Lock()
		wasClosed := s.closed
		s.mu.Unlock()
		if wasClosed {
			return nil, io.EOF
		}
		return nil, errors.ConnectionLost(err)
	}
	return nil, io.EOF
}

func (s *sseSession) Send(protocol.Request) error {
	return errors.SendUnsupported("sse")
}

// Close releases the response body. Idempotent.
func (s *sseSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.body.Close()
	})
	return nil
}
