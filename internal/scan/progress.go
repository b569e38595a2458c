package scan

// Progress is the tagged sum of scan progress events. Events may be
// dropped by a slow subscriber; the final counts in Completed do not
// depend on delivery.
type Progress interface {
	progressType() string
}

// IncrementalHint reports how many files the index already knows.
type IncrementalHint struct {
	IndexedFiles int
}

// ProviderScanning announces the start of one provider's discovery pass.
type ProviderScanning struct {
	Name string
}

// ProviderSessionCount reports the sessions a provider discovered.
type ProviderSessionCount struct {
	Name        string
	Count       int
	ProjectHash string
	AllProjects bool
}

// SessionRegistered fires once per upserted session.
type SessionRegistered struct {
	ID string
}

// LogRootMissing reports a provider whose log root does not exist; the
// scan proceeds with the next provider.
type LogRootMissing struct {
	Name string
	Root string
}

// Completed carries the final counts. It is emitted exactly once.
type Completed struct {
	TotalSessions int
	ScannedFiles  int
	SkippedFiles  int
	Failures      int
}

func (IncrementalHint) progressType() string      { return "incremental_hint" }
func (ProviderScanning) progressType() string     { return "provider_scanning" }
func (ProviderSessionCount) progressType() string { return "provider_session_count" }
func (SessionRegistered) progressType() string    { return "session_registered" }
func (LogRootMissing) progressType() string       { return "log_root_missing" }
func (Completed) progressType() string            { return "completed" }
