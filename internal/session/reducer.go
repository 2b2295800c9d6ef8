package session

import (
	"fmt"
	"log"

	"github.com/lfzhong/excel-agent/internal/protocol"
	"github.com/lfzhong/excel-agent/internal/render"
)

// Reducer folds decoded envelopes into a Document. All processing for one
// message happens synchronously inside Apply, never spanning an await
// boundary, so fragments of interleaved content types land in their own
// live sections in exact arrival order.
//
// Per-slot transitions:
//
//	Absent       + start        -> init (fragment applied if present)
//	Absent       + in_progress  -> init, apply fragment
//	Absent       + end          -> init, apply fragment, finalize
//	Accumulating + start        -> finalize stale section, init fresh one
//	Accumulating + in_progress  -> apply fragment
//	Accumulating + end          -> apply trailing fragment, finalize
//	Finalized    + start        -> init fresh section of the same type
//	Finalized    + in_progress  -> stray fragment, logged and dropped
//	Finalized    + end          -> no-op
//
// A duplicate start on an accumulating slot finalizes the stale section
// (side effects included) before re-initializing, so no open section is
// ever silently discarded.
type Reducer struct {
	doc  *Document
	sink Sink
}

// NewReducer creates a reducer feeding the given document and sink.
// A nil sink discards updates.
func NewReducer(doc *Document, sink Sink) *Reducer {
	if sink == nil {
		sink = NopSink{}
	}
	return &Reducer{doc: doc, sink: sink}
}

// Apply processes one envelope and reports whether the session reached its
// terminal state. Envelopes with a non-zero code are upstream-signaled
// failures: their data is ignored and the failure is rendered into the
// error section. After dispatching a message carrying finished:1, every
// still-accumulating slot is force-finalized so no section dangles open.
func (r *Reducer) Apply(env *protocol.Envelope) bool {
	if env == nil {
		return false
	}

	if env.Code != 0 {
		msg := env.Msg
		if msg == "" {
			msg = fmt.Sprintf("upstream failure (code %d)", env.Code)
		}
		r.dispatch(protocol.ContentError, protocol.StatusInProgress, msg)
		return false
	}

	m := env.Data
	if m == nil {
		return false
	}

	r.dispatch(m.Type(), m.Status(), m.Answer)

	if m.IsFinished() {
		r.finish()
		return true
	}
	return false
}

// dispatch routes one fragment to its content type's slot.
// The content type and status are expected to be normalized already.
func (r *Reducer) dispatch(t protocol.ContentType, status protocol.ContentStatus, fragment string) {
	switch r.doc.State(t) {
	case SlotAbsent:
		sec := r.doc.openSection(t)
		r.sink.SectionOpened(sec)
		r.applyFragment(sec, fragment)
		if status == protocol.StatusEnd {
			r.doc.finalizeSection(t, sec)
			r.sink.SectionFinalized(sec)
		}

	case SlotAccumulating:
		sec := r.doc.activeSection(t)
		switch status {
		case protocol.StatusStart:
			// Duplicate start: close out the stale section properly, then
			// begin a fresh one. See the transition table above.
			log.Printf("Duplicate start for open %s section, finalizing the stale one", t)
			r.doc.finalizeSection(t, sec)
			r.sink.SectionFinalized(sec)
			fresh := r.doc.openSection(t)
			r.sink.SectionOpened(fresh)
			r.applyFragment(fresh, fragment)
		case protocol.StatusEnd:
			r.applyFragment(sec, fragment)
			r.doc.finalizeSection(t, sec)
			r.sink.SectionFinalized(sec)
		default:
			r.applyFragment(sec, fragment)
		}

	case SlotFinalized:
		switch status {
		case protocol.StatusStart:
			sec := r.doc.openSection(t)
			r.sink.SectionOpened(sec)
			r.applyFragment(sec, fragment)
		case protocol.StatusEnd:
			// Second end for an already-finalized slot: idempotent no-op.
		default:
			log.Printf("Dropping stray %s fragment after section finalized", t)
		}
	}
}

func (r *Reducer) applyFragment(sec render.Section, fragment string) {
	if fragment == "" {
		return
	}
	sec.Append(fragment)
	r.sink.SectionUpdated(sec)
}

// finish force-finalizes every still-accumulating slot and marks the
// document terminal.
func (r *Reducer) finish() {
	for _, t := range protocol.ContentTypes {
		if r.doc.State(t) != SlotAccumulating {
			continue
		}
		sec := r.doc.activeSection(t)
		r.doc.finalizeSection(t, sec)
		r.sink.SectionFinalized(sec)
	}
	r.doc.markFinished()
	r.sink.SessionFinished(r.doc)
}
