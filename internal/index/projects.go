package index

import (
	"database/sql"
	"fmt"
)

// UpsertProject inserts or refreshes a project by hash. A nil root path on
// conflict keeps the previously recorded one.
func (s *Store) UpsertProject(rec ProjectRecord) error {
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO projects (hash, root_path, last_scanned_at)
			VALUES (?, ?, ?)
			ON CONFLICT(hash) DO UPDATE SET
				root_path = COALESCE(excluded.root_path, root_path),
				last_scanned_at = excluded.last_scanned_at
		`, rec.Hash, nullString(rec.RootPath), nullTime(rec.LastScannedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert project %s: %w", rec.Hash, err)
		}
		return nil
	})
}

// GetProject loads one project by hash.
func (s *Store) GetProject(hash string) (ProjectRecord, error) {
	row := s.db.QueryRow(`
		SELECT hash, root_path, last_scanned_at FROM projects WHERE hash = ?
	`, hash)
	rec, err := scanProject(row)
	if err == sql.ErrNoRows {
		return ProjectRecord{}, ErrNotFound
	}
	return rec, err
}

// ListProjects returns projects most recently scanned first.
func (s *Store) ListProjects() ([]ProjectRecord, error) {
	rows, err := s.db.Query(`
		SELECT hash, root_path, last_scanned_at
		FROM projects
		ORDER BY COALESCE(last_scanned_at, '') DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []ProjectRecord
	for rows.Next() {
		rec, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, rec)
	}
	return projects, rows.Err()
}

// CountSessionsForProject counts a project's valid sessions.
func (s *Store) CountSessionsForProject(hash string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sessions WHERE project_hash = ? AND is_valid = 1
	`, hash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func scanProject(row rowScanner) (ProjectRecord, error) {
	var rec ProjectRecord
	var rootPath, scannedAt sql.NullString
	if err := row.Scan(&rec.Hash, &rootPath, &scannedAt); err != nil {
		return ProjectRecord{}, err
	}
	rec.RootPath = rootPath.String
	rec.LastScannedAt = parseStoredTime(scannedAt)
	return rec, nil
}
