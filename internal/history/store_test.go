package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lfzhong/excel-agent/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(chatID string, finished time.Time) *SessionRecord {
	return &SessionRecord{
		ChatID:     chatID,
		Question:   "total revenue by region?",
		Transport:  "websocket",
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
		Sections: []SectionRecord{
			{Position: 0, ContentType: "code", Payload: "df.groupby('region').sum()", Finalized: true},
			{Position: 1, ContentType: "data", Payload: `[{"region":"EMEA","revenue":42}]`, Finalized: true},
			{Position: 2, ContentType: "result", Payload: "EMEA leads with 42", Finalized: true},
		},
	}
}

func TestStore_SaveAndGetSession(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	rec := sampleRecord("chat-1", now)
	if err := store.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession() error: %v", err)
	}

	got, err := store.GetSession("chat-1")
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got.Question != rec.Question {
		t.Errorf("question = %q, want %q", got.Question, rec.Question)
	}
	if got.Transport != "websocket" {
		t.Errorf("transport = %q", got.Transport)
	}
	if !got.FinishedAt.Equal(now) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, now)
	}
	if len(got.Sections) != 3 {
		t.Fatalf("loaded %d sections, want 3", len(got.Sections))
	}
	for i, sec := range got.Sections {
		if sec.Position != i {
			t.Errorf("section %d has position %d", i, sec.Position)
		}
		if sec.Payload != rec.Sections[i].Payload {
			t.Errorf("section %d payload = %q, want %q", i, sec.Payload, rec.Sections[i].Payload)
		}
		if !sec.Finalized {
			t.Errorf("section %d should be finalized", i)
		}
	}
}

func TestStore_SaveReplacesPreviousRecord(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	if err := store.SaveSession(sampleRecord("chat-1", now)); err != nil {
		t.Fatalf("first SaveSession() error: %v", err)
	}

	updated := &SessionRecord{
		ChatID:     "chat-1",
		Question:   "updated question",
		Transport:  "sse",
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Sections: []SectionRecord{
			{Position: 0, ContentType: "text", Payload: "only one now", Finalized: true},
		},
	}
	if err := store.SaveSession(updated); err != nil {
		t.Fatalf("second SaveSession() error: %v", err)
	}

	got, err := store.GetSession("chat-1")
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got.Question != "updated question" {
		t.Errorf("question = %q, old record not replaced", got.Question)
	}
	if len(got.Sections) != 1 {
		t.Errorf("loaded %d sections, stale sections not cleared", len(got.Sections))
	}
}

func TestStore_GetMissingSessionIsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession("nope")
	if !errors.IsCode(err, errors.CodeHistoryNotFound) {
		t.Errorf("error = %v, want history.not_found", err)
	}
}

func TestStore_ListRecentNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		rec := sampleRecord(fmt.Sprintf("chat-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := store.SaveSession(rec); err != nil {
			t.Fatalf("SaveSession(%d) error: %v", i, err)
		}
	}

	recent, err := store.ListRecent(3)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("listed %d sessions, want 3", len(recent))
	}
	want := []string{"chat-4", "chat-3", "chat-2"}
	for i, rec := range recent {
		if rec.ChatID != want[i] {
			t.Errorf("position %d = %s, want %s", i, rec.ChatID, want[i])
		}
		if len(rec.Sections) != 0 {
			t.Error("ListRecent should not load sections")
		}
	}
}

func TestStore_ListRecentDefaultLimit(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSession(sampleRecord("chat-1", time.Now())); err != nil {
		t.Fatalf("SaveSession() error: %v", err)
	}

	recent, err := store.ListRecent(0)
	if err != nil {
		t.Fatalf("ListRecent(0) error: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("listed %d sessions, want 1", len(recent))
	}
}

func TestStore_DeleteSession(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSession(sampleRecord("chat-1", time.Now())); err != nil {
		t.Fatalf("SaveSession() error: %v", err)
	}

	if err := store.DeleteSession("chat-1"); err != nil {
		t.Fatalf("DeleteSession() error: %v", err)
	}
	if _, err := store.GetSession("chat-1"); !errors.IsCode(err, errors.CodeHistoryNotFound) {
		t.Errorf("session still present after delete: %v", err)
	}

	if err := store.DeleteSession("chat-1"); !errors.IsCode(err, errors.CodeHistoryNotFound) {
		t.Errorf("deleting a missing session = %v, want history.not_found", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if err := store.SaveSession(sampleRecord("chat-1", time.Now())); err != nil {
		t.Fatalf("SaveSession() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession("chat-1")
	if err != nil {
		t.Fatalf("GetSession() after reopen error: %v", err)
	}
	if len(got.Sections) != 3 {
		t.Errorf("loaded %d sections after reopen, want 3", len(got.Sections))
	}
}
