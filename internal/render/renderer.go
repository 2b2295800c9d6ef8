// Package render turns accumulated section state into display updates.
// Each content type has its own accumulation semantics: code concatenates
// raw text, data builds a table row by row, and result/error/text collect
// formatted blocks. Renderers never fail on malformed input; anything that
// doesn't match the expected shape degrades to opaque text so the user
// always sees something.
package render

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"

	"github.com/lfzhong/excel-agent/internal/protocol"
)

// Section is the live handle for one accumulating unit of the session
// document. A section is created by the reducer when the first message for
// its content type arrives, grows through Append calls, and is released
// through exactly one of Finalize (normal completion, runs the section's
// completion side effects) or Abort (cancellation, runs none).
type Section interface {
	// Type returns the content type this section accumulates.
	Type() protocol.ContentType

	// Append applies one fragment to the section's payload.
	// Malformed fragments degrade to a text fallback; Append never fails.
	Append(fragment string)

	// Finalize marks the section complete and materializes its completion
	// artifacts (copyable code buffer, CSV export). Calling Finalize more
	// than once is a no-op.
	Finalize()

	// Abort releases the section without running finalize side effects.
	// Already-accumulated payload remains readable.
	Abort()

	// Finalized reports whether Finalize has run.
	Finalized() bool

	// Payload returns the accumulated content as plain text, suitable for
	// persistence in the session history.
	Payload() string

	// View renders the accumulated content for terminal display.
	View(st *Styles) string
}

// NewSection creates the section implementation for a content type.
// The type is expected to be normalized already; anything unknown gets
// block semantics, matching the text fallback of protocol.NormalizeType.
func NewSection(t protocol.ContentType) Section {
	switch t {
	case protocol.ContentCode:
		return newCodeSection()
	case protocol.ContentData:
		return newDataSection()
	default:
		return newBlockSection(t)
	}
}

// Styles bundles the lipgloss styles used when rendering sections for the
// terminal. Use DefaultStyles for a colored TTY and PlainStyles for
// undecorated output (piped output, tests).
type Styles struct {
	Title       lipgloss.Style
	Bold        lipgloss.Style
	Italic      lipgloss.Style
	Code        lipgloss.Style
	Error       lipgloss.Style
	TableHeader lipgloss.Style
	Muted       lipgloss.Style
}

// DefaultStyles returns the colored terminal styles.
func DefaultStyles() *Styles {
	return &Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:        lipgloss.NewStyle().Bold(true),
		Italic:      lipgloss.NewStyle().Italic(true),
		Code:        lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		TableHeader: lipgloss.NewStyle().Bold(true).Underline(true),
		Muted:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// PlainStyles returns pass-through styles that add no decoration.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()
	return &Styles{
		Title:       plain,
		Bold:        plain,
		Italic:      plain,
		Code:        plain,
		Error:       plain,
		TableHeader: plain,
		Muted:       plain,
	}
}

var (
	boldMarkup   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicMarkup = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// ResolveMarkup applies minimal inline markup to a block: **bold** and
// *italic* spans are rendered with the corresponding styles. Line breaks
// pass through untouched. Unbalanced markers are left as-is.
func ResolveMarkup(s string, st *Styles) string {
	s = boldMarkup.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[2 : len(match)-2]
		return st.Bold.Render(inner)
	})
	s = italicMarkup.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[1 : len(match)-1]
		return st.Italic.Render(inner)
	})
	return s
}
