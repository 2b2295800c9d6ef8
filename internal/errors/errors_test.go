package errors

import (
	"errors"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodeHistoryNotFound, "session not found"),
			expected: "history.not_found: session not found",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeTransportConnectFailed, "dial failed", errors.New("connection refused")),
			expected: "transport.connect_failed: dial failed (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}

	// Test without cause
	err2 := New(CodeHistoryNotFound, "not found")
	if err2.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodeDecodeMalformed, "bad frame"),
			expected: CodeDecodeMalformed,
		},
		{
			name:     "wrapped CodedError",
			err:      Wrap(CodeTransportSendFailed, "failed", errors.New("cause")),
			expected: CodeTransportSendFailed,
		},
		{
			name:     "CodedError nested in fmt wrapping",
			err:      wrapPlain(New(CodeSessionBusy, "busy")),
			expected: CodeSessionBusy,
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func wrapPlain(err error) error {
	return &wrapper{err}
}

type wrapper struct{ inner error }

func (w *wrapper) Error() string { return "outer: " + w.inner.Error() }
func (w *wrapper) Unwrap() error { return w.inner }

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "CodedError", err: New(CodeVoiceEmpty, "no audio captured"), expected: "no audio captured"},
		{name: "plain error", err: errors.New("plain failure"), expected: "plain failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessage(tt.err); got != tt.expected {
				t.Errorf("GetMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	code, msg := ToCodeAndMessage(New(CodeUpstreamFailed, "backend reported failure"))
	if code != CodeUpstreamFailed || msg != "backend reported failure" {
		t.Errorf("ToCodeAndMessage() = (%q, %q), want (%q, %q)", code, msg, CodeUpstreamFailed, "backend reported failure")
	}

	code, msg = ToCodeAndMessage(errors.New("raw"))
	if code != CodeUnknown || msg != "raw" {
		t.Errorf("ToCodeAndMessage() plain = (%q, %q)", code, msg)
	}

	code, msg = ToCodeAndMessage(nil)
	if code != "" || msg != "" {
		t.Errorf("ToCodeAndMessage(nil) = (%q, %q), want empty", code, msg)
	}
}

func TestIsCode(t *testing.T) {
	err := SessionBusy()
	if !IsCode(err, CodeSessionBusy) {
		t.Error("IsCode() should match session.busy")
	}
	if IsCode(err, CodeSessionCancelled) {
		t.Error("IsCode() should not match a different code")
	}
}

func TestConstructors(t *testing.T) {
	if got := SendUnsupported("sse").Code; got != CodeTransportSendUnsupported {
		t.Errorf("SendUnsupported() code = %q", got)
	}
	lost := ConnectionLost(errors.New("eof"))
	if lost.Code != CodeTransportConnectionLost {
		t.Errorf("ConnectionLost() code = %q", lost.Code)
	}
	if lost.Unwrap() == nil {
		t.Error("ConnectionLost() should carry its cause")
	}
}
