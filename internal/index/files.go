package index

import (
	"database/sql"
	"fmt"
)

// UpsertLogFile inserts or replaces a log-file record by path. Size and
// mod-time are overwritten atomically.
func (s *Store) UpsertLogFile(rec LogFileRecord) error {
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO log_files (path, session_id, role, file_size, mod_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				session_id = excluded.session_id,
				role = excluded.role,
				file_size = excluded.file_size,
				mod_time = excluded.mod_time
		`, rec.Path, rec.SessionID, rec.Role, nullInt(rec.FileSize), nullTime(rec.ModTime))
		if err != nil {
			return fmt.Errorf("failed to upsert log file %s: %w", rec.Path, err)
		}
		return nil
	})
}

// GetSessionFiles returns a session's files ordered by role ascending, so
// the primary file sorts first.
func (s *Store) GetSessionFiles(sessionID string) ([]LogFileRecord, error) {
	return s.queryLogFiles(`
		SELECT path, session_id, role, file_size, mod_time
		FROM log_files
		WHERE session_id = ?
		ORDER BY role, path
	`, sessionID)
}

// AllLogFiles returns every recorded file ordered by path.
func (s *Store) AllLogFiles() ([]LogFileRecord, error) {
	return s.queryLogFiles(`
		SELECT path, session_id, role, file_size, mod_time
		FROM log_files
		ORDER BY path
	`)
}

// GetLogFile loads one record by path.
func (s *Store) GetLogFile(path string) (LogFileRecord, error) {
	rows, err := s.queryLogFiles(`
		SELECT path, session_id, role, file_size, mod_time
		FROM log_files
		WHERE path = ?
	`, path)
	if err != nil {
		return LogFileRecord{}, err
	}
	if len(rows) == 0 {
		return LogFileRecord{}, ErrNotFound
	}
	return rows[0], nil
}

// RemoveLogFile deletes a vanished file's record. When that was the
// session's last file, the session record goes with it.
func (s *Store) RemoveLogFile(path string) error {
	return s.write(func(tx *sql.Tx) error {
		var sessionID sql.NullString
		err := tx.QueryRow("SELECT session_id FROM log_files WHERE path = ?", path).Scan(&sessionID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up log file %s: %w", path, err)
		}
		if _, err := tx.Exec("DELETE FROM log_files WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to delete log file %s: %w", path, err)
		}
		if sessionID.Valid {
			var remaining int
			err := tx.QueryRow("SELECT COUNT(*) FROM log_files WHERE session_id = ?", sessionID.String).Scan(&remaining)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if _, err := tx.Exec("DELETE FROM sessions WHERE session_id = ?", sessionID.String); err != nil {
					return fmt.Errorf("failed to delete session %s: %w", sessionID.String, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) queryLogFiles(query string, args ...any) ([]LogFileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log files: %w", err)
	}
	defer rows.Close()

	var files []LogFileRecord
	for rows.Next() {
		var rec LogFileRecord
		var size sql.NullInt64
		var modTime sql.NullString
		if err := rows.Scan(&rec.Path, &rec.SessionID, &rec.Role, &size, &modTime); err != nil {
			return nil, err
		}
		if size.Valid {
			v := size.Int64
			rec.FileSize = &v
		}
		rec.ModTime = parseStoredTime(modTime)
		files = append(files, rec)
	}
	return files, rows.Err()
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
