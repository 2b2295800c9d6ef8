// Package protocol defines the wire format shared by the WebSocket and SSE
// transports: the outbound query request and the inbound message envelope.
// The envelope decoder validates raw frames before they reach the session
// reducer; everything past this package works with typed messages only.
package protocol

import "encoding/base64"

// ContentType classifies a streamed message fragment.
// Each type accumulates into its own section of the session document.
type ContentType string

const (
	// ContentCode carries generated analysis code, streamed as raw text.
	ContentCode ContentType = "code"

	// ContentData carries tabular results, streamed as JSON-encoded rows.
	ContentData ContentType = "data"

	// ContentResult carries the final textual conclusion of an analysis.
	ContentResult ContentType = "result"

	// ContentError carries backend-reported failures rendered to the user.
	ContentError ContentType = "error"

	// ContentText carries free-form progress narration. It is also the
	// fallback for absent or unrecognized content types.
	ContentText ContentType = "text"
)

// ContentStatus marks the lifecycle phase of a fragment within its section.
type ContentStatus string

const (
	// StatusStart opens a new section for the fragment's content type.
	StatusStart ContentStatus = "start"

	// StatusInProgress appends the fragment to the open section.
	// Absent or unrecognized statuses normalize to this, never to start,
	// so a garbled frame can't re-initialize a live section.
	StatusInProgress ContentStatus = "in_progress"

	// StatusEnd applies a trailing fragment if present, then finalizes.
	StatusEnd ContentStatus = "end"
)

// ContentTypes lists the five known section types in a stable order.
var ContentTypes = []ContentType{ContentCode, ContentData, ContentResult, ContentError, ContentText}

// Message is one unit of streamed content within a query session.
type Message struct {
	// Answer is the text fragment. For ContentData it may itself be a
	// JSON-encoded array of rows.
	Answer string `json:"answer"`

	// Finished is 1 on the message that terminates the whole session.
	// It is independent of ContentStatus: the terminal message may also
	// carry a final fragment for one section.
	Finished int `json:"finished"`

	// ContentType is the section this fragment belongs to.
	// May be absent; see NormalizeType.
	ContentType string `json:"content_type,omitempty"`

	// ContentStatus is the lifecycle phase. May be absent; see NormalizeStatus.
	ContentStatus string `json:"content_status,omitempty"`

	// ChatID echoes the client-generated correlation id. Opaque to the reducer.
	ChatID string `json:"chat_id,omitempty"`

	// ResponseID is a server-generated id for this response. Opaque to the reducer.
	ResponseID string `json:"response_id,omitempty"`
}

// Type returns the message's normalized content type.
func (m *Message) Type() ContentType {
	return NormalizeType(m.ContentType)
}

// Status returns the message's normalized content status.
func (m *Message) Status() ContentStatus {
	return NormalizeStatus(m.ContentStatus)
}

// IsFinished reports whether this message terminates the session.
func (m *Message) IsFinished() bool {
	return m.Finished == 1
}

// Envelope is the outer wire wrapper around a Message.
// A non-zero Code signals an upstream failure; the Data field of such an
// envelope must be ignored and the failure surfaced as an error section.
type Envelope struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg,omitempty"`
	Data *Message `json:"data"`
}

// NormalizeType maps a raw content_type value to one of the five known
// section types. Absent and unrecognized values map to ContentText.
// The mapping is total: every input lands in exactly one slot.
func NormalizeType(raw string) ContentType {
	switch ContentType(raw) {
	case ContentCode, ContentData, ContentResult, ContentError, ContentText:
		return ContentType(raw)
	default:
		return ContentText
	}
}

// NormalizeStatus maps a raw content_status value to a known lifecycle
// phase. Absent and unrecognized values map to StatusInProgress so that a
// malformed status appends rather than re-initializing a section.
func NormalizeStatus(raw string) ContentStatus {
	switch ContentStatus(raw) {
	case StatusStart, StatusInProgress, StatusEnd:
		return ContentStatus(raw)
	default:
		return StatusInProgress
	}
}

// Request type discriminators for the duplex transport.
const (
	RequestTypeText  = "text"
	RequestTypeVoice = "voice"
)

// Request is the outbound query submitted to start a session.
// Over the duplex transport it is sent as a JSON frame; the SSE transport
// carries only the question, URL-encoded on session open.
type Request struct {
	// Type is "text" or "voice".
	Type string `json:"type"`

	// Question is the natural-language question (text requests only).
	Question string `json:"question,omitempty"`

	// AudioData is the base64-encoded captured audio (voice requests only).
	AudioData string `json:"audio_data,omitempty"`

	// ChatID is the client-generated correlation id for this request.
	ChatID string `json:"chat_id"`
}

// NewTextRequest builds a text question request.
func NewTextRequest(question, chatID string) Request {
	return Request{
		Type:     RequestTypeText,
		Question: question,
		ChatID:   chatID,
	}
}

// NewVoiceRequest builds a voice request from raw captured audio.
// The audio payload is base64-encoded for transport.
func NewVoiceRequest(audio []byte, chatID string) Request {
	return Request{
		Type:      RequestTypeVoice,
		AudioData: base64.StdEncoding.EncodeToString(audio),
		ChatID:    chatID,
	}
}

// IsVoice reports whether this is a voice request.
func (r Request) IsVoice() bool {
	return r.Type == RequestTypeVoice
}
