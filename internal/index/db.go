// Package index is the durable pointer store mapping sessions to files.
// It is metadata-only: raw events stay in the provider logs. Concurrent
// readers are permitted; writes serialize behind a single mutex and every
// committed upsert survives process crash.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Lookup errors surfaced to callers unchanged.
var (
	ErrNotFound  = errors.New("session not found")
	ErrAmbiguous = errors.New("session prefix is ambiguous")
)

// schemaVersion is bumped on every migration; migrations are monotone and
// forward-only.
const schemaVersion = 1

// Store owns the index database. Teardown via Close releases the
// underlying file.
type Store struct {
	db *sql.DB
	// mu serializes writers; readers go straight to the pool.
	mu sync.Mutex
}

// Open opens (creating if needed) the index store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		hash TEXT PRIMARY KEY,
		root_path TEXT,
		last_scanned_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		project_hash TEXT NOT NULL,
		provider TEXT NOT NULL,
		start_ts TIMESTAMP,
		end_ts TIMESTAMP,
		snippet TEXT,
		parent_session_id TEXT,
		spawn_context TEXT,
		is_valid INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS log_files (
		path TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER,
		mod_time TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_hash);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_ts DESC);
	CREATE INDEX IF NOT EXISTS idx_log_files_session ON log_files(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var version sql.NullInt64
	err := s.db.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec("INSERT INTO schema_info (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case version.Int64 > schemaVersion:
		return fmt.Errorf("index schema version %d is newer than supported %d", version.Int64, schemaVersion)
	}
	return nil
}

// write runs fn with the writer lock held and commits its transaction.
// Callers must not perform non-database I/O inside fn.
func (s *Store) write(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
