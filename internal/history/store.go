// Package history persists completed session documents to a local SQLite
// database so past questions and their streamed answers survive restarts.
package history

import (
	"database/sql"
	"time"

	// Using modernc.org/sqlite, a pure-Go SQLite implementation that
	// needs no cgo and works on all supported platforms.
	_ "modernc.org/sqlite"

	"github.com/lfzhong/excel-agent/internal/errors"
)

// SessionRecord is one persisted session: the question asked and the
// ordered sections of its answer document.
type SessionRecord struct {
	ChatID     string
	Question   string
	Transport  string
	StartedAt  time.Time
	FinishedAt time.Time
	Sections   []SectionRecord
}

// SectionRecord is one persisted section of a session document.
type SectionRecord struct {
	Position    int
	ContentType string
	Payload     string
	Finalized   bool
}

// Store wraps the SQLite database holding session history.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the history database at the given path.
// Use ":memory:" for an ephemeral store in tests.
func NewStore(path string) (*Store, error) {
	// The modernc.org/sqlite driver takes pragmas on the DSN.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(errors.CodeHistoryOpenFailed, "failed to open history database", err)
	}

	// SQLite handles one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodeHistoryOpenFailed, "failed to initialize history schema", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores a completed session and its sections, replacing any
// previous record with the same chat id.
func (s *Store) SaveSession(rec *SessionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.CodeHistorySaveFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO sessions (chat_id, question, transport, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ChatID, rec.Question, rec.Transport,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(errors.CodeHistorySaveFailed, "failed to save session", err)
	}

	// Replace semantics: drop any sections from a previous save.
	if _, err := tx.Exec(`DELETE FROM sections WHERE chat_id = ?`, rec.ChatID); err != nil {
		return errors.Wrap(errors.CodeHistorySaveFailed, "failed to clear stale sections", err)
	}

	for _, sec := range rec.Sections {
		_, err = tx.Exec(`
			INSERT INTO sections (chat_id, position, content_type, payload, finalized)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ChatID, sec.Position, sec.ContentType, sec.Payload, boolToInt(sec.Finalized))
		if err != nil {
			return errors.Wrap(errors.CodeHistorySaveFailed, "failed to save section", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeHistorySaveFailed, "failed to commit session", err)
	}
	return nil
}

// GetSession loads one session with its sections in document order.
func (s *Store) GetSession(chatID string) (*SessionRecord, error) {
	rec := &SessionRecord{ChatID: chatID}

	var started, finished int64
	err := s.db.QueryRow(`
		SELECT question, transport, started_at, finished_at
		FROM sessions WHERE chat_id = ?`, chatID).
		Scan(&rec.Question, &rec.Transport, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeHistoryNotFound, "session "+chatID+" not found")
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to load session", err)
	}
	rec.StartedAt = time.UnixMilli(started)
	rec.FinishedAt = time.UnixMilli(finished)

	rows, err := s.db.Query(`
		SELECT position, content_type, payload, finalized
		FROM sections WHERE chat_id = ? ORDER BY position`, chatID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to load sections", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec SectionRecord
		var finalized int
		if err := rows.Scan(&sec.Position, &sec.ContentType, &sec.Payload, &finalized); err != nil {
			return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to scan section", err)
		}
		sec.Finalized = finalized != 0
		rec.Sections = append(rec.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to iterate sections", err)
	}

	return rec, nil
}

// ListRecent returns up to limit sessions, newest first, without their
// sections. Use GetSession to load a full document.
func (s *Store) ListRecent(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT chat_id, question, transport, started_at, finished_at
		FROM sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to list sessions", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		var started, finished int64
		if err := rows.Scan(&rec.ChatID, &rec.Question, &rec.Transport, &started, &finished); err != nil {
			return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to scan session", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeHistoryQueryFailed, "failed to iterate sessions", err)
	}
	return out, nil
}

// DeleteSession removes one session and its sections.
func (s *Store) DeleteSession(chatID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.CodeHistoryQueryFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sections WHERE chat_id = ?`, chatID); err != nil {
		return errors.Wrap(errors.CodeHistoryQueryFailed, "failed to delete sections", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		return errors.Wrap(errors.CodeHistoryQueryFailed, "failed to delete session", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.New(errors.CodeHistoryNotFound, "session "+chatID+" not found")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeHistoryQueryFailed, "failed to commit delete", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
