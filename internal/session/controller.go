package session

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/lfzhong/excel-agent/internal/errors"
	"github.com/lfzhong/excel-agent/internal/history"
	"github.com/lfzhong/excel-agent/internal/protocol"
	"github.com/lfzhong/excel-agent/internal/transport"
)

// ControllerConfig holds configuration for a session controller.
type ControllerConfig struct {
	// Transport opens session streams against the backend.
	Transport transport.Transport

	// TransportName labels the transport in persisted history ("websocket"
	// or "sse"). Optional.
	TransportName string

	// Sink receives incremental render updates. If nil, updates are
	// discarded and only the returned Document carries the result.
	Sink Sink

	// History, if set, persists each finished session document.
	// Save failures are logged, never fatal to the session.
	History *history.Store

	// OnError is called for contained failures (dropped undecodable
	// frames). If nil, they are only logged.
	OnError func(err error)
}

// Controller orchestrates one session at a time: it generates the request
// correlation id, opens the transport, drives the reducer over inbound
// frames until the terminal message, and releases the transport handle on
// every exit path. A second Ask while one is in flight fails with
// session.busy rather than interleaving two sessions into one document.
type Controller struct {
	cfg ControllerConfig

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	doc    *Document
}

// NewController creates a controller over the given transport.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	return &Controller{cfg: cfg}
}

// Busy reports whether a session is currently in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Ask submits a text question and blocks until the session finishes,
// errors, or ctx is cancelled. The returned Document is valid (though
// possibly incomplete) even when an error is returned, so partial output
// stays visible after a failure.
func (c *Controller) Ask(ctx context.Context, question string) (*Document, error) {
	req := protocol.NewTextRequest(question, uuid.New().String())
	return c.run(ctx, req, question)
}

// AskVoice submits captured audio as a voice question. Only the duplex
// transport supports this; the audio is base64-encoded for the wire.
func (c *Controller) AskVoice(ctx context.Context, audio []byte) (*Document, error) {
	if len(audio) == 0 {
		return nil, errors.New(errors.CodeVoiceEmpty, "no audio captured")
	}
	req := protocol.NewVoiceRequest(audio, uuid.New().String())
	return c.run(ctx, req, "(voice question)")
}

// Cancel aborts the in-flight session, if any. Live sections are released
// without their finalize side effects. No-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Document returns the in-flight session's document, or nil when idle.
func (c *Controller) Document() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

func (c *Controller) run(ctx context.Context, req protocol.Request, question string) (*Document, error) {
	doc := NewDocument(req.ChatID, question)

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, errors.SessionBusy()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	c.doc = doc
	c.mu.Unlock()

	// The busy state must clear on every exit path so the caller is never
	// stuck in a dead "processing" state after a failure.
	defer func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.cancel = nil
		c.doc = nil
		c.mu.Unlock()
	}()

	reducer := NewReducer(doc, c.cfg.Sink)

	conn, err := c.cfg.Transport.Open(runCtx, req)
	if err != nil {
		return doc, err
	}
	defer conn.Close()

	for {
		frame, err := conn.Next(runCtx)
		if err != nil {
			doc.Abort()
			if runCtx.Err() != nil {
				return doc, errors.Wrap(errors.CodeSessionCancelled, "session cancelled", runCtx.Err())
			}
			if err == io.EOF {
				// The peer ended the stream without the terminal flag.
				return doc, errors.New(errors.CodeTransportConnectionLost,
					"stream ended before session finished")
			}
			return doc, err
		}

		env, decodeErr := protocol.DecodeEnvelope(frame)
		if decodeErr != nil {
			// Contained failure: drop the frame, keep the session alive.
			log.Printf("Dropping undecodable frame for session %s: %v", doc.ChatID, decodeErr)
			if c.cfg.OnError != nil {
				c.cfg.OnError(decodeErr)
			}
			continue
		}

		if reducer.Apply(env) {
			break
		}
	}

	if c.cfg.History != nil {
		if err := c.cfg.History.SaveSession(toRecord(doc, c.cfg.TransportName)); err != nil {
			log.Printf("Failed to save session %s to history: %v", doc.ChatID, err)
		}
	}
	return doc, nil
}

// toRecord converts a finished document into its persisted form.
func toRecord(doc *Document, transportName string) *history.SessionRecord {
	rec := &history.SessionRecord{
		ChatID:     doc.ChatID,
		Question:   doc.Question,
		Transport:  transportName,
		StartedAt:  doc.StartedAt,
		FinishedAt: doc.FinishedAt(),
	}
	for i, sec := range doc.Sections() {
		rec.Sections = append(rec.Sections, history.SectionRecord{
			Position:    i,
			ContentType: string(sec.Type()),
			Payload:     sec.Payload(),
			Finalized:   sec.Finalized(),
		})
	}
	return rec
}
