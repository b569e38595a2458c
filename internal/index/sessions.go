package index

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// UpsertSession inserts or replaces a session record by session_id.
func (s *Store) UpsertSession(rec SessionRecord) error {
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (session_id, project_hash, provider, start_ts, end_ts, snippet, parent_session_id, spawn_context, is_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				project_hash = excluded.project_hash,
				provider = excluded.provider,
				start_ts = excluded.start_ts,
				end_ts = excluded.end_ts,
				snippet = excluded.snippet,
				parent_session_id = excluded.parent_session_id,
				spawn_context = excluded.spawn_context,
				is_valid = excluded.is_valid
		`, rec.SessionID, rec.ProjectHash, rec.Provider,
			nullTime(rec.StartTS), nullTime(rec.EndTS),
			nullString(rec.Snippet), nullString(rec.ParentSessionID),
			nullString(rec.SpawnContext), boolToInt(rec.IsValid))
		if err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", rec.SessionID, err)
		}
		return nil
	})
}

// GetSession loads one session record.
func (s *Store) GetSession(sessionID string) (SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT session_id, project_hash, provider, start_ts, end_ts, snippet, parent_session_id, spawn_context, is_valid
		FROM sessions WHERE session_id = ?
	`, sessionID)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrNotFound
	}
	return rec, err
}

// FindSessionByPrefix resolves a session id prefix. Exactly one match
// resolves; none is ErrNotFound; several is ErrAmbiguous. Prefixes of 8
// hex characters are the shortest with a uniqueness guarantee, but any
// non-empty prefix is matched.
func (s *Store) FindSessionByPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.Query(`
		SELECT session_id FROM sessions
		WHERE session_id LIKE ? ESCAPE '\'
		LIMIT 2
	`, escapeLike(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("failed to query sessions by prefix: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", ErrAmbiguous
	}
}

// SessionPage is one page of a newest-first session listing.
type SessionPage struct {
	Sessions []SessionRecord
	// NextCursor is opaque to callers; empty when the listing is
	// exhausted.
	NextCursor string
}

// ListSessions pages sessions newest-first by start_ts, optionally scoped
// to one project hash.
func (s *Store) ListSessions(projectHash string, limit int, cursor string) (SessionPage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT session_id, project_hash, provider, start_ts, end_ts, snippet, parent_session_id, spawn_context, is_valid
		FROM sessions
	`
	var conds []string
	var args []any
	if projectHash != "" {
		conds = append(conds, "project_hash = ?")
		args = append(args, projectHash)
	}
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return SessionPage{}, err
		}
		conds = append(conds, "(COALESCE(start_ts, '') < ? OR (COALESCE(start_ts, '') = ? AND session_id > ?))")
		args = append(args, ts, ts, id)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY COALESCE(start_ts, '') DESC, session_id ASC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return SessionPage{}, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var page SessionPage
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return SessionPage{}, err
		}
		page.Sessions = append(page.Sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return SessionPage{}, err
	}
	if len(page.Sessions) > limit {
		page.Sessions = page.Sessions[:limit]
		last := page.Sessions[limit-1]
		page.NextCursor = encodeCursor(last.StartTS, last.SessionID)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var startTS, endTS sql.NullString
	var snippet, parent, spawn sql.NullString
	var isValid int
	err := row.Scan(&rec.SessionID, &rec.ProjectHash, &rec.Provider,
		&startTS, &endTS, &snippet, &parent, &spawn, &isValid)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.StartTS = parseStoredTime(startTS)
	rec.EndTS = parseStoredTime(endTS)
	rec.Snippet = snippet.String
	rec.ParentSessionID = parent.String
	rec.SpawnContext = spawn.String
	rec.IsValid = isValid != 0
	return rec, nil
}

func encodeCursor(startTS *time.Time, sessionID string) string {
	ts := ""
	if startTS != nil {
		ts = formatStoredTime(*startTS)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(ts + "|" + sessionID))
}

func decodeCursor(cursor string) (ts, id string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("malformed cursor: %w", err)
	}
	at := strings.LastIndexByte(string(raw), '|')
	if at < 0 {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return string(raw[:at]), string(raw[at+1:]), nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// storedTimeFormat is fixed-width UTC so stored timestamps compare
// lexicographically, which the paging cursor relies on.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

func parseStoredTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	// The sqlite driver decodes TIMESTAMP columns itself and hands them
	// back rendered as RFC 3339, which drops trailing zero fractions.
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatStoredTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
