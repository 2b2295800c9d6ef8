// Package errors provides standardized error codes for the excel-agent client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (transport, decode, session, ...)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by callers for programmatic error
// handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that callers can rely on for error handling.
const (
	// Transport domain - connection and delivery errors
	CodeTransportConnectFailed   = "transport.connect_failed"   // Dial or HTTP open failed
	CodeTransportSendFailed      = "transport.send_failed"      // Failed to write a request frame
	CodeTransportSendUnsupported = "transport.send_unsupported" // Transport is receive-only (SSE)
	CodeTransportConnectionLost  = "transport.connection_lost"  // Connection unexpectedly closed mid-stream
	CodeTransportClosed          = "transport.closed"           // Operation on a closed handle
	CodeTransportBadStatus       = "transport.bad_status"       // Non-200 response on stream open

	// Decode domain - frame parsing errors
	CodeDecodeMalformed  = "decode.malformed"   // Frame is not a parseable envelope
	CodeDecodeEmptyFrame = "decode.empty_frame" // Frame contained no data

	// Upstream domain - backend-signaled failures
	CodeUpstreamFailed = "upstream.failed" // Envelope arrived with code != 0

	// Session domain - lifecycle and orchestration errors
	CodeSessionBusy      = "session.busy"      // A session is already in flight
	CodeSessionCancelled = "session.cancelled" // Session aborted by caller
	CodeSessionFinished  = "session.finished"  // Message arrived after terminal flag

	// Voice domain - audio capture errors
	CodeVoiceCaptureFailed = "voice.capture_failed" // Reading from the audio source failed
	CodeVoiceEmpty         = "voice.empty"          // No audio captured before submission
	CodeVoiceUnsupported   = "voice.unsupported"    // Transport cannot carry voice requests

	// History domain - local persistence errors
	CodeHistoryOpenFailed  = "history.open_failed"  // Database open failed
	CodeHistoryQueryFailed = "history.query_failed" // Database query failed
	CodeHistorySaveFailed  = "history.save_failed"  // Failed to save a session
	CodeHistoryNotFound    = "history.not_found"    // Session not found

	// Config domain - configuration errors
	CodeConfigInvalid = "config.invalid" // Config failed validation

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal client error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "transport.connection_lost")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to user-visible output.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// SessionBusy creates a "session.busy" error.
func SessionBusy() *CodedError {
	return New(CodeSessionBusy, "a session is already in flight")
}

// SendUnsupported creates a "transport.send_unsupported" error.
func SendUnsupported(transport string) *CodedError {
	return New(CodeTransportSendUnsupported, fmt.Sprintf("%s transport is receive-only", transport))
}

// ConnectionLost creates a "transport.connection_lost" error wrapping the cause.
func ConnectionLost(cause error) *CodedError {
	return Wrap(CodeTransportConnectionLost, "connection unexpectedly closed", cause)
}
