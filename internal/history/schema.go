package history

import (
	"fmt"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 1

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *Store) initSchema() error {
	// Schema version table tracks database migrations.
	// This allows future schema changes to be applied incrementally.
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the initial sessions and sections tables.
func (s *Store) migrateToV1() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			chat_id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			transport TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sections (
			chat_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			finalized INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, position),
			FOREIGN KEY (chat_id) REFERENCES sessions(chat_id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_finished_at ON sessions(finished_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		1, time.Now().UTC().Format(time.RFC3339))
	return err
}
