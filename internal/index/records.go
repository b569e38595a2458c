package index

import "time"

// SessionRecord is the index's pointer to one session. Raw events stay in
// the provider's files; only metadata lives here.
type SessionRecord struct {
	SessionID       string
	ProjectHash     string
	Provider        string
	StartTS         *time.Time
	EndTS           *time.Time
	Snippet         string
	ParentSessionID string
	// SpawnContext is the JSON-encoded spawn context for subagent
	// sessions, empty otherwise.
	SpawnContext string
	// IsValid is false only while parsing the session's files fails; the
	// record stays listable for diagnostics.
	IsValid bool
}

// Log file roles. The primary file sorts first because roles order
// ascending.
const (
	RolePrimary   = 0
	RoleAuxiliary = 1
)

// LogFileRecord maps one on-disk file to its session, with the filesystem
// state recorded at last scan for the incremental-skip predicate.
type LogFileRecord struct {
	Path      string
	SessionID string
	Role      int
	FileSize  *int64
	ModTime   *time.Time
}

// Unchanged reports whether the recorded (size, mod-time) pair matches the
// filesystem. Any mismatch or missing recording forces a rescan.
func (r LogFileRecord) Unchanged(size int64, modTime time.Time) bool {
	if r.FileSize == nil || r.ModTime == nil {
		return false
	}
	return *r.FileSize == size && r.ModTime.Equal(modTime)
}

// ProjectRecord is one known project root.
type ProjectRecord struct {
	Hash          string
	RootPath      string
	LastScannedAt *time.Time
}
