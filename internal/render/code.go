package render

import (
	"regexp"
	"strings"

	"github.com/lfzhong/excel-agent/internal/protocol"
)

// fenceMarker matches a line that is only a code fence, with an optional
// language tag (```python, ```, ~~~sql). The backend wraps generated code
// in fences for browser display; the terminal view strips them.
var fenceMarker = regexp.MustCompile("^(```|~~~)[A-Za-z0-9_+-]*\\s*$")

// codeSection accumulates generated analysis code as one growing buffer.
// Fragments are concatenated verbatim after fence stripping, so code split
// across messages reassembles byte-for-byte.
type codeSection struct {
	buf       strings.Builder
	finalized bool
	copyText  string
}

func newCodeSection() *codeSection {
	return &codeSection{}
}

func (s *codeSection) Type() protocol.ContentType {
	return protocol.ContentCode
}

func (s *codeSection) Append(fragment string) {
	s.buf.WriteString(StripFences(fragment))
}

// Finalize snapshots the complete buffer as the copyable artifact.
func (s *codeSection) Finalize() {
	if s.finalized {
		return
	}
	s.finalized = true
	s.copyText = s.buf.String()
}

func (s *codeSection) Abort() {
	// Nothing to release; the copy artifact is deliberately not produced.
}

func (s *codeSection) Finalized() bool {
	return s.finalized
}

// Code returns the accumulated buffer, complete or not.
func (s *codeSection) Code() string {
	return s.buf.String()
}

// CopyText returns the finalize artifact: the complete buffer as captured
// at Finalize time. Empty until the section is finalized.
func (s *codeSection) CopyText() string {
	return s.copyText
}

func (s *codeSection) Payload() string {
	return s.buf.String()
}

func (s *codeSection) View(st *Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("Generated code"))
	b.WriteString("\n")
	b.WriteString(st.Code.Render(strings.TrimRight(s.buf.String(), "\n")))
	if s.finalized {
		b.WriteString("\n")
		b.WriteString(st.Muted.Render("(complete)"))
	}
	return b.String()
}

// StripFences removes code fence marker lines from a fragment, keeping the
// code between them. A fragment with no fences passes through unchanged.
//
// Stripping is per fragment: a marker split across two fragments ("``"
// then "`python\n") is not recognized and its pieces pass through. In
// practice the backend emits each fence line whole within one fragment.
func StripFences(fragment string) string {
	if !strings.Contains(fragment, "```") && !strings.Contains(fragment, "~~~") {
		return fragment
	}

	lines := strings.Split(fragment, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if fenceMarker.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
