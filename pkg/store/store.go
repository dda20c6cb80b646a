package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStore wraps constraint violations and I/O failures. Surfaced to
// the caller; never retried automatically.
var ErrStore = errors.New("store error")

// Database owns the SQLite handle. One instance exists per process;
// the engine's own locking serializes readers and writers.
type Database struct {
	db *sql.DB
}

// Open creates or opens the database at path (":memory:" for tests)
// and ensures the schema.
func Open(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStore, path, err)
	}
	// a single connection keeps writes serialized and makes
	// :memory: databases behave
	db.SetMaxOpenConns(1)

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS video_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			device_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_chunk_id INTEGER NOT NULL REFERENCES video_chunks(id),
			offset_index INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			app_name TEXT NOT NULL DEFAULT '',
			window_name TEXT NOT NULL DEFAULT '',
			browser_url TEXT NOT NULL DEFAULT '',
			focused INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_timestamp ON frames(timestamp)`,
		`CREATE TABLE IF NOT EXISTS ocr_text (
			frame_id INTEGER NOT NULL REFERENCES frames(id),
			text TEXT NOT NULL,
			text_json TEXT NOT NULL DEFAULT '',
			ocr_engine TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS ocr_text_fts USING fts5(
			text, app_name, window_name, browser_url
		)`,
		`CREATE TABLE IF NOT EXISTS audio_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS speakers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding BLOB NOT NULL,
			hallucination INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS audio_transcriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			audio_chunk_id INTEGER NOT NULL REFERENCES audio_chunks(id),
			offset_index INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL,
			transcription TEXT NOT NULL,
			transcription_engine TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL DEFAULT '',
			is_input_device INTEGER NOT NULL DEFAULT 1,
			speaker_id INTEGER REFERENCES speakers(id),
			start_time REAL,
			end_time REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_transcriptions_timestamp
			ON audio_transcriptions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_transcriptions_speaker
			ON audio_transcriptions(speaker_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS audio_transcriptions_fts USING fts5(
			transcription, device
		)`,
		`CREATE TABLE IF NOT EXISTS ui_monitoring (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text_output TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			app TEXT NOT NULL DEFAULT '',
			window TEXT NOT NULL DEFAULT '',
			initial_traversal_at DATETIME
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS ui_monitoring_fts USING fts5(
			text_output, app, window
		)`,
	}
	for _, stmt := range schema {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", ErrStore, err)
		}
	}
	return nil
}

func (d *Database) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return res, nil
}
