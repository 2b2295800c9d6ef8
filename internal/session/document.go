// Package session implements the streaming state machine at the heart of
// the client. A session is one question-to-answer exchange: the controller
// submits the request, and the reducer folds the inbound message sequence
// into a growing Document of renderable sections, one live section per
// content type, with exactly-once initialization and finalization.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/lfzhong/excel-agent/internal/protocol"
	"github.com/lfzhong/excel-agent/internal/render"
)

// SlotState is the per-content-type state-machine position.
type SlotState int

const (
	// SlotAbsent means no message for this content type has arrived yet.
	SlotAbsent SlotState = iota

	// SlotAccumulating means a live section is open and accepting fragments.
	SlotAccumulating

	// SlotFinalized means the most recent section for this type completed.
	// A later start opens a fresh section and returns to SlotAccumulating.
	SlotFinalized
)

func (s SlotState) String() string {
	switch s {
	case SlotAbsent:
		return "absent"
	case SlotAccumulating:
		return "accumulating"
	case SlotFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Sink receives render-ready updates as the reducer processes messages.
// Implementations must not block: all callbacks run synchronously on the
// session's message loop, which preserves the arrival-order guarantee.
type Sink interface {
	// SectionOpened fires when a section is initialized.
	SectionOpened(sec render.Section)

	// SectionUpdated fires after a fragment is applied to a section.
	SectionUpdated(sec render.Section)

	// SectionFinalized fires exactly once per normally-completed section.
	// It does not fire for sections released by cancellation.
	SectionFinalized(sec render.Section)

	// SessionFinished fires once, after the terminal message has been
	// dispatched and every still-open section force-finalized.
	SessionFinished(doc *Document)
}

// NopSink discards all updates. Useful when only the final Document matters.
type NopSink struct{}

func (NopSink) SectionOpened(render.Section)    {}
func (NopSink) SectionUpdated(render.Section)   {}
func (NopSink) SectionFinalized(render.Section) {}
func (NopSink) SessionFinished(*Document)       {}

// Document is the single growing output of one session: an ordered list of
// sections plus the per-type slot map of live handles. It is owned by the
// session that created it and discarded (but still readable) on completion.
type Document struct {
	ChatID    string
	Question  string
	StartedAt time.Time

	mu         sync.Mutex
	sections   []render.Section
	active     map[protocol.ContentType]render.Section
	states     map[protocol.ContentType]SlotState
	finished   bool
	finishedAt time.Time
}

// NewDocument creates an empty document for one session.
func NewDocument(chatID, question string) *Document {
	return &Document{
		ChatID:    chatID,
		Question:  question,
		StartedAt: time.Now(),
		active:    make(map[protocol.ContentType]render.Section),
		states:    make(map[protocol.ContentType]SlotState),
	}
}

// Sections returns the document's sections in arrival order, including
// finalized ones.
func (d *Document) Sections() []render.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]render.Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// State returns the slot state for a content type.
func (d *Document) State(t protocol.ContentType) SlotState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[t]
}

// Finished reports whether the session reached its terminal message.
func (d *Document) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// FinishedAt returns when the terminal message was observed (zero if the
// session never finished).
func (d *Document) FinishedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finishedAt
}

// View renders the whole document for terminal display, sections in
// arrival order separated by blank lines.
func (d *Document) View(st *render.Styles) string {
	d.mu.Lock()
	secs := make([]render.Section, len(d.sections))
	copy(secs, d.sections)
	d.mu.Unlock()

	views := make([]string, 0, len(secs))
	for _, sec := range secs {
		views = append(views, sec.View(st))
	}
	return strings.Join(views, "\n\n")
}

// Abort releases every live section handle without running finalize side
// effects. Already-rendered output remains readable. Safe to call from any
// slot state and more than once. Aborted slots leave SlotAccumulating so a
// message arriving after the abort is treated as stray (or as a fresh
// start) instead of being applied to a released handle.
func (d *Document) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t, sec := range d.active {
		sec.Abort()
		delete(d.active, t)
		d.states[t] = SlotFinalized
	}
}

// openSection creates and registers a fresh live section for a type.
func (d *Document) openSection(t protocol.ContentType) render.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	sec := render.NewSection(t)
	d.sections = append(d.sections, sec)
	d.active[t] = sec
	d.states[t] = SlotAccumulating
	return sec
}

// activeSection returns the live handle for a type, or nil.
func (d *Document) activeSection(t protocol.ContentType) render.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[t]
}

// finalizeSection runs a section's finalize step and releases its handle.
func (d *Document) finalizeSection(t protocol.ContentType, sec render.Section) {
	sec.Finalize()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[t] == sec {
		delete(d.active, t)
	}
	d.states[t] = SlotFinalized
}

// markFinished records the terminal state.
func (d *Document) markFinished() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = true
	d.finishedAt = time.Now()
}
