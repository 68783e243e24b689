package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/pkg/logger"
)

// NewDB opens the SQLite database at the given path.
func NewDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}
	return db, nil
}

// TranscriptStorage persists the transcript log. Entries carry an
// explicit position column because display order is acceptance order
// with translations spliced in, not timestamp order.
type TranscriptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB, log *logger.Logger) (*TranscriptStorage, error) {
	storage := &TranscriptStorage{
		db:     db,
		logger: log.Named("sqlite-transcripts"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize transcript storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			text TEXT NOT NULL,
			language TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT 'primary',
			provisional INTEGER NOT NULL DEFAULT 0,
			is_translation INTEGER NOT NULL DEFAULT 0,
			translation_of TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(position)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_channel ON entries(channel)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create entries index: %w", err)
		}
	}

	return nil
}

// SaveAll replaces the persisted log with the given snapshot in one
// transaction. The log is small (one session of captions) so a full
// rewrite is cheaper than maintaining splice positions incrementally.
func (s *TranscriptStorage) SaveAll(entries []transcript.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO entries
		(id, position, timestamp, text, language, channel, provisional, is_translation, translation_of)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var translationOf sql.NullString
		if e.Meta != nil && e.Meta.TranslationOf != "" {
			translationOf = sql.NullString{String: e.Meta.TranslationOf, Valid: true}
		}
		if _, err := stmt.Exec(
			e.ID,
			i,
			e.Timestamp.Format(time.RFC3339Nano),
			e.Text,
			e.Language,
			string(e.Channel),
			boolToInt(e.Provisional),
			boolToInt(e.IsTranslation),
			translationOf,
		); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadAll returns the persisted log in display order.
func (s *TranscriptStorage) LoadAll() ([]transcript.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, text, language, channel, provisional, is_translation, translation_of
		FROM entries
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntryRows(rows)
}

// LoadSince returns entries with a timestamp at or after the cutoff, in
// display order. Used to honor the hide-before threshold.
func (s *TranscriptStorage) LoadSince(cutoff time.Time) ([]transcript.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, text, language, channel, provisional, is_translation, translation_of
		FROM entries
		WHERE timestamp >= ?
		ORDER BY position ASC`,
		cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries since cutoff: %w", err)
	}
	defer rows.Close()

	return s.scanEntryRows(rows)
}

// Clear removes all persisted entries.
func (s *TranscriptStorage) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// SetHideBefore stores the display cutoff: entries before it stay in
// the database but are excluded from display loads.
func (s *TranscriptStorage) SetHideBefore(cutoff time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES ('hide_before', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set hide_before: %w", err)
	}
	return nil
}

// GetHideBefore returns the display cutoff, or the zero time when none
// is set.
func (s *TranscriptStorage) GetHideBefore() (time.Time, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'hide_before'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get hide_before: %w", err)
	}
	cutoff, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// A corrupt cutoff hides nothing rather than everything.
		s.logger.Warn("Invalid hide_before value, ignoring", logger.String("value", value))
		return time.Time{}, nil
	}
	return cutoff, nil
}

// scanEntryRows scans database rows into transcript entries
func (s *TranscriptStorage) scanEntryRows(rows *sql.Rows) ([]transcript.Entry, error) {
	var entries []transcript.Entry
	for rows.Next() {
		var e transcript.Entry
		var timestamp, channel string
		var provisional, isTranslation int
		var translationOf sql.NullString

		if err := rows.Scan(
			&e.ID,
			&timestamp,
			&e.Text,
			&e.Language,
			&channel,
			&provisional,
			&isTranslation,
			&translationOf,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		e.Timestamp = ts
		e.Channel = transcript.Channel(channel)
		e.Provisional = provisional != 0
		e.IsTranslation = isTranslation != 0
		if translationOf.Valid {
			e.Meta = &transcript.Meta{TranslationOf: translationOf.String}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entry rows: %w", err)
	}
	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
