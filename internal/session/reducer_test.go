package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/lfzhong/excel-agent/internal/protocol"
	"github.com/lfzhong/excel-agent/internal/render"
)

// spySink records reducer callbacks for testing. It implements Sink.
type spySink struct {
	mu         sync.Mutex
	opened     []protocol.ContentType
	updated    []protocol.ContentType
	finalized  []protocol.ContentType
	finishedN  int
	lastUpdate render.Section
}

func newSpySink() *spySink {
	return &spySink{}
}

func (s *spySink) SectionOpened(sec render.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, sec.Type())
}

func (s *spySink) SectionUpdated(sec render.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, sec.Type())
	s.lastUpdate = sec
}

func (s *spySink) SectionFinalized(sec render.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, sec.Type())
}

func (s *spySink) SessionFinished(*Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedN++
}

func (s *spySink) finalizeCount(t protocol.ContentType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ft := range s.finalized {
		if ft == t {
			n++
		}
	}
	return n
}

func msg(contentType, status, answer string, finished int) *protocol.Envelope {
	return &protocol.Envelope{
		Code: 0,
		Data: &protocol.Message{
			Answer:        answer,
			Finished:      finished,
			ContentType:   contentType,
			ContentStatus: status,
		},
	}
}

func TestReducer_InterleavedScenario(t *testing.T) {
	// The canonical interleaving: code opens, streams, result opens while
	// code is still live, code ends, result streams, terminal message.
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	seq := []*protocol.Envelope{
		msg("code", "start", "", 0),
		msg("code", "in_progress", "x=1", 0),
		msg("result", "start", "", 0),
		msg("code", "end", "", 0),
		msg("result", "in_progress", "done", 0),
		msg("", "", "", 1),
	}

	for i, env := range seq[:5] {
		if r.Apply(env) {
			t.Fatalf("message %d should not terminate the session", i)
		}
	}
	// Code finalized by its own end, before the terminal message.
	if doc.State(protocol.ContentCode) != SlotFinalized {
		t.Fatal("code slot should be finalized before the terminal message")
	}
	if doc.State(protocol.ContentResult) != SlotAccumulating {
		t.Fatal("result slot should still be accumulating")
	}

	if !r.Apply(seq[5]) {
		t.Fatal("terminal message should finish the session")
	}

	// Result was force-finalized by the terminal message.
	if doc.State(protocol.ContentResult) != SlotFinalized {
		t.Error("result slot should be force-finalized at session end")
	}
	if !doc.Finished() {
		t.Error("document should be marked finished")
	}

	sections := doc.Sections()
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections (code, result, text from terminal), got %d", len(sections))
	}
	if got := sections[0].Payload(); got != "x=1" {
		t.Errorf("code payload = %q, want %q", got, "x=1")
	}
	if got := sections[1].Payload(); got != "done" {
		t.Errorf("result payload = %q, want %q", got, "done")
	}

	if sink.finalizeCount(protocol.ContentCode) != 1 {
		t.Errorf("code finalized %d times, want exactly once", sink.finalizeCount(protocol.ContentCode))
	}
	if sink.finalizeCount(protocol.ContentResult) != 1 {
		t.Errorf("result finalized %d times, want exactly once", sink.finalizeCount(protocol.ContentResult))
	}
	if sink.finishedN != 1 {
		t.Errorf("SessionFinished fired %d times, want once", sink.finishedN)
	}
}

func TestReducer_EverySlotFinalizedExactlyOnce(t *testing.T) {
	// For a valid sequence ending in finished:1, every slot that entered
	// Accumulating ends Finalized exactly once.
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("text", "start", "Searching...", 0))
	r.Apply(msg("code", "start", "", 0))
	r.Apply(msg("code", "in_progress", "x=1", 0))
	r.Apply(msg("data", "start", "", 0))
	r.Apply(msg("data", "in_progress", `[{"a":1}]`, 0))
	r.Apply(msg("code", "end", "", 0))
	r.Apply(msg("result", "in_progress", "done", 0))
	r.Apply(msg("", "", "", 1))

	for _, ct := range []protocol.ContentType{protocol.ContentText, protocol.ContentCode, protocol.ContentData, protocol.ContentResult} {
		if doc.State(ct) != SlotFinalized {
			t.Errorf("%s slot state = %v, want finalized", ct, doc.State(ct))
		}
		if n := sink.finalizeCount(ct); n != 1 {
			t.Errorf("%s finalized %d times, want exactly once", ct, n)
		}
	}
	// The error slot never entered Accumulating and must stay absent.
	if doc.State(protocol.ContentError) != SlotAbsent {
		t.Error("error slot should remain absent")
	}
	if sink.finalizeCount(protocol.ContentError) != 0 {
		t.Error("error slot must not be finalized")
	}
}

func TestReducer_SecondEndIsNoOp(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("code", "start", "", 0))
	r.Apply(msg("code", "end", "x=1", 0))
	r.Apply(msg("code", "end", "", 0))

	if n := sink.finalizeCount(protocol.ContentCode); n != 1 {
		t.Errorf("finalize fired %d times after duplicate end, want 1", n)
	}
	if len(doc.Sections()) != 1 {
		t.Errorf("duplicate end must not open a new section, got %d sections", len(doc.Sections()))
	}
}

func TestReducer_DuplicateStartFinalizesStaleSection(t *testing.T) {
	// Chosen resolution of the re-init quirk: the stale section is
	// finalized (side effects included), then a fresh one begins.
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("code", "start", "", 0))
	r.Apply(msg("code", "in_progress", "old", 0))
	r.Apply(msg("code", "start", "", 0))
	r.Apply(msg("code", "in_progress", "new", 0))

	sections := doc.Sections()
	if len(sections) != 2 {
		t.Fatalf("expected 2 code sections, got %d", len(sections))
	}
	if !sections[0].Finalized() {
		t.Error("stale section should be finalized, not silently dropped")
	}
	if sections[0].Payload() != "old" {
		t.Errorf("stale payload = %q", sections[0].Payload())
	}
	if sections[1].Finalized() {
		t.Error("fresh section should still be live")
	}
	if sections[1].Payload() != "new" {
		t.Errorf("fresh payload = %q; fragments must never mix across sections", sections[1].Payload())
	}
	if n := sink.finalizeCount(protocol.ContentCode); n != 1 {
		t.Errorf("exactly one finalize expected for the stale section, got %d", n)
	}
}

func TestReducer_StartAfterFinalizedOpensFreshSection(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("text", "start", "first run", 0))
	r.Apply(msg("text", "end", "", 0))
	r.Apply(msg("text", "start", "second run", 0))

	if doc.State(protocol.ContentText) != SlotAccumulating {
		t.Error("slot should be accumulating again after a fresh start")
	}
	if len(doc.Sections()) != 2 {
		t.Fatalf("expected 2 text sections, got %d", len(doc.Sections()))
	}
}

func TestReducer_StrayFragmentAfterFinalizeIsDropped(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("code", "end", "x=1", 0))
	r.Apply(msg("code", "in_progress", "stray", 0))

	sections := doc.Sections()
	if len(sections) != 1 {
		t.Fatalf("stray fragment must not open a section, got %d", len(sections))
	}
	if sections[0].Payload() != "x=1" {
		t.Errorf("stray fragment leaked into payload: %q", sections[0].Payload())
	}
}

func TestReducer_NormalizationRoutesEverything(t *testing.T) {
	// Unknown types land in the text slot; unknown statuses append.
	doc := NewDocument("c1", "q")
	r := NewReducer(doc, newSpySink())

	r.Apply(msg("markdown", "begin", "hello", 0))
	r.Apply(msg("", "", "world", 0))

	if doc.State(protocol.ContentText) != SlotAccumulating {
		t.Fatal("unrecognized type should land in the text slot")
	}
	sections := doc.Sections()
	if len(sections) != 1 {
		t.Fatalf("both fragments should share one text section, got %d sections", len(sections))
	}
	if got := sections[0].Payload(); got != "hello\nworld" {
		t.Errorf("payload = %q, want both fragments in order", got)
	}
}

func TestReducer_OrderPreservationWithinType(t *testing.T) {
	doc := NewDocument("c1", "q")
	r := NewReducer(doc, newSpySink())

	r.Apply(msg("code", "in_progress", "A", 0))
	r.Apply(msg("code", "in_progress", "B", 0))

	payload := doc.Sections()[0].Payload()
	if payload != "AB" {
		t.Errorf("payload = %q, want A before B", payload)
	}
}

func TestReducer_UpstreamCodeRendersErrorSection(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	env := &protocol.Envelope{
		Code: 401,
		Msg:  "token expired",
		Data: &protocol.Message{Answer: "must be ignored", ContentType: "code"},
	}
	if r.Apply(env) {
		t.Fatal("upstream failure should not terminate the session")
	}

	if doc.State(protocol.ContentError) != SlotAccumulating {
		t.Fatal("upstream failure should open the error section")
	}
	if doc.State(protocol.ContentCode) != SlotAbsent {
		t.Error("the failed envelope's data must be ignored")
	}
	view := doc.View(render.PlainStyles())
	if !strings.Contains(view, "token expired") {
		t.Errorf("error not visible in document: %q", view)
	}
	if strings.Contains(view, "must be ignored") {
		t.Error("ignored payload leaked into the document")
	}
}

func TestReducer_UpstreamCodeWithoutMessage(t *testing.T) {
	doc := NewDocument("c1", "q")
	r := NewReducer(doc, newSpySink())

	r.Apply(&protocol.Envelope{Code: 500})

	view := doc.View(render.PlainStyles())
	if !strings.Contains(view, "code 500") {
		t.Errorf("synthesized error should name the code: %q", view)
	}
}

func TestReducer_FinishedPiggybackedOnContent(t *testing.T) {
	// The backend sends finished:1 on the final result end message.
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("result", "start", "", 0))
	r.Apply(msg("result", "in_progress", "**Analysis Complete:**\n42", 0))
	if !r.Apply(msg("result", "end", "", 1)) {
		t.Fatal("piggybacked finished flag should terminate the session")
	}

	if n := sink.finalizeCount(protocol.ContentResult); n != 1 {
		t.Errorf("result finalized %d times, want once (end and force-finalize must not double up)", n)
	}
	if !doc.Finished() {
		t.Error("document should be finished")
	}
}

func TestReducer_NilAndEmptyEnvelopes(t *testing.T) {
	doc := NewDocument("c1", "q")
	r := NewReducer(doc, newSpySink())

	if r.Apply(nil) {
		t.Error("nil envelope must be a no-op")
	}
	if r.Apply(&protocol.Envelope{Code: 0, Data: nil}) {
		t.Error("envelope without data must be a no-op")
	}
	if len(doc.Sections()) != 0 {
		t.Error("no sections should exist")
	}
}

func TestDocument_AbortReleasesWithoutFinalize(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("code", "in_progress", "x=1", 0))
	r.Apply(msg("data", "in_progress", `[{"a":1}]`, 0))

	doc.Abort()
	doc.Abort() // idempotent

	if len(sink.finalized) != 0 {
		t.Errorf("abort must not invoke finalize side effects, got %d", len(sink.finalized))
	}
	for _, sec := range doc.Sections() {
		if sec.Finalized() {
			t.Errorf("%s section reports finalized after abort", sec.Type())
		}
	}
	// Already-rendered output remains.
	if !strings.Contains(doc.View(render.PlainStyles()), "x=1") {
		t.Error("accumulated output should survive abort")
	}
}

func TestReducer_MessagesAfterAbortAreSafe(t *testing.T) {
	doc := NewDocument("c1", "q")
	sink := newSpySink()
	r := NewReducer(doc, sink)

	r.Apply(msg("code", "in_progress", "x=1", 0))
	doc.Abort()

	// Fragments and ends for the aborted slot are stray: dropped without
	// touching the released handle.
	r.Apply(msg("code", "in_progress", "x=2", 0))
	r.Apply(msg("code", "end", "", 0))
	if doc.State(protocol.ContentCode) != SlotFinalized {
		t.Errorf("aborted slot state = %v, want SlotFinalized", doc.State(protocol.ContentCode))
	}
	if got := sink.finalizeCount(protocol.ContentCode); got != 0 {
		t.Errorf("stray messages after abort finalized %d sections, want 0", got)
	}

	// A fresh start reopens the slot with a new section.
	r.Apply(msg("code", "start", "y=1", 0))
	if doc.State(protocol.ContentCode) != SlotAccumulating {
		t.Errorf("slot state after restart = %v, want SlotAccumulating", doc.State(protocol.ContentCode))
	}
	if !strings.Contains(doc.View(render.PlainStyles()), "y=1") {
		t.Error("restarted section should accumulate new output")
	}
}
