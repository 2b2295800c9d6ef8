package render

import (
	"strings"

	"github.com/lfzhong/excel-agent/internal/protocol"
)

// blockSection accumulates result, error, and text content. Each fragment
// becomes one formatted block, appended in arrival order. Finalize has no
// artifact beyond marking the section visually complete.
type blockSection struct {
	contentType protocol.ContentType
	blocks      []string
	finalized   bool
}

func newBlockSection(t protocol.ContentType) *blockSection {
	return &blockSection{contentType: t}
}

func (s *blockSection) Type() protocol.ContentType {
	return s.contentType
}

func (s *blockSection) Append(fragment string) {
	s.blocks = append(s.blocks, fragment)
}

func (s *blockSection) Finalize() {
	s.finalized = true
}

func (s *blockSection) Abort() {}

func (s *blockSection) Finalized() bool {
	return s.finalized
}

// Blocks returns the accumulated blocks in arrival order.
func (s *blockSection) Blocks() []string {
	return s.blocks
}

func (s *blockSection) Payload() string {
	return strings.Join(s.blocks, "\n")
}

func (s *blockSection) View(st *Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render(sectionTitle(s.contentType)))
	for _, block := range s.blocks {
		b.WriteString("\n")
		resolved := ResolveMarkup(block, st)
		if s.contentType == protocol.ContentError {
			resolved = st.Error.Render(resolved)
		}
		b.WriteString(resolved)
	}
	return b.String()
}

func sectionTitle(t protocol.ContentType) string {
	switch t {
	case protocol.ContentResult:
		return "Result"
	case protocol.ContentError:
		return "Error"
	default:
		return "Progress"
	}
}
