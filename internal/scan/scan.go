// Package scan drives incremental indexing: provider discovery, the
// unchanged-file skip rule, session registration, and categorized
// diagnostics over provider corpora.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/event"
	"github.com/lanegrid/agtrace/internal/index"
	"github.com/lanegrid/agtrace/internal/logging"
	"github.com/lanegrid/agtrace/internal/project"
	"github.com/lanegrid/agtrace/internal/provider"
	"github.com/lanegrid/agtrace/internal/telemetry"
)

const snippetMax = 80

// Target pairs a provider adapter with its log root.
type Target struct {
	Adapter provider.Adapter
	LogRoot string
}

// Options scope one scan run.
type Options struct {
	// ProjectHash restricts registration to sessions of one project;
	// empty means all projects.
	ProjectHash string
	// Force reindexes files even when their recorded (size, mod-time)
	// still matches the filesystem.
	Force bool
}

// Result carries the final counts of a run.
type Result struct {
	TotalSessions int
	ScannedFiles  int
	SkippedFiles  int
	Failures      int
}

// Driver runs scans against one index store.
type Driver struct {
	Store *index.Store
	Log   *logging.Logger
	// Now is injectable for deterministic tests; nil means time.Now.
	Now func() time.Time
}

// NewDriver returns a scan driver over the store.
func NewDriver(store *index.Store) *Driver {
	return &Driver{Store: store, Log: logging.New().WithComponent("scanner")}
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run scans every target, honoring the incremental rule unless forced, and
// reports progress through report (nil is allowed). Completion is
// exactly-once; the returned Result always matches the Completed event.
func (d *Driver) Run(ctx context.Context, targets []Target, opts Options, report func(Progress)) (Result, error) {
	if report == nil {
		report = func(Progress) {}
	}
	ctx, span := telemetry.StartScan(ctx, opts.ProjectHash, opts.Force)
	defer span.End()

	var result Result

	if known, err := d.Store.AllLogFiles(); err == nil {
		report(IncrementalHint{IndexedFiles: len(known)})
		if opts.Force {
			d.removeVanished(known)
		}
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		name := target.Adapter.Name()
		if _, err := os.Stat(target.LogRoot); os.IsNotExist(err) {
			report(LogRootMissing{Name: name, Root: target.LogRoot})
			continue
		}
		report(ProviderScanning{Name: name})

		_, providerSpan := telemetry.StartProvider(ctx, name)
		sessions, err := target.Adapter.Discover(target.LogRoot)
		providerSpan.End()
		if err != nil {
			d.Log.Warn("provider discovery failed", map[string]interface{}{
				"provider": name, "error": err.Error(),
			})
			result.Failures++
			continue
		}

		registered := 0
		for _, session := range sessions {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			ok, scanned, skipped := d.registerSession(target.Adapter, session, opts, report)
			result.ScannedFiles += scanned
			result.SkippedFiles += skipped
			if ok {
				registered++
				result.TotalSessions++
			}
		}
		report(ProviderSessionCount{
			Name:        name,
			Count:       registered,
			ProjectHash: opts.ProjectHash,
			AllProjects: opts.ProjectHash == "",
		})
	}

	report(Completed{
		TotalSessions: result.TotalSessions,
		ScannedFiles:  result.ScannedFiles,
		SkippedFiles:  result.SkippedFiles,
		Failures:      result.Failures,
	})
	return result, nil
}

// registerSession applies the incremental rule to a discovered session and
// upserts its records. Parse failures mark the session invalid but still
// listable.
func (d *Driver) registerSession(adapter provider.Adapter, session provider.DiscoveredSession, opts Options, report func(Progress)) (registered bool, scanned, skipped int) {
	info, err := os.Stat(session.PrimaryFile)
	if err != nil {
		// Vanished between discovery and stat; drop any stale record.
		_ = d.Store.RemoveLogFile(session.PrimaryFile)
		return false, 0, 0
	}
	size := info.Size()
	modTime := info.ModTime().UTC()

	if !opts.Force {
		if rec, err := d.Store.GetLogFile(session.PrimaryFile); err == nil && rec.Unchanged(size, modTime) {
			d.Log.FileScanned(session.PrimaryFile, true)
			return false, 0, 1
		}
	}
	d.Log.FileScanned(session.PrimaryFile, false)
	scanned = 1

	hash := ""
	if session.ProjectPath != "" {
		hash = project.HashFromRoot(session.ProjectPath)
	}
	if opts.ProjectHash != "" && hash != opts.ProjectHash {
		return false, scanned, 0
	}

	rec := index.SessionRecord{
		SessionID:       session.SessionID,
		ProjectHash:     hash,
		Provider:        adapter.Name(),
		StartTS:         session.StartedAt,
		ParentSessionID: session.ParentSessionID,
		IsValid:         true,
	}
	if session.SpawnContext != nil {
		if data, err := json.Marshal(session.SpawnContext); err == nil {
			rec.SpawnContext = string(data)
		}
	}

	events, _, err := provider.NormalizeFile(adapter, session.PrimaryFile)
	if err != nil {
		rec.IsValid = false
	} else if len(events) > 0 {
		start := events[0].Timestamp
		end := events[len(events)-1].Timestamp
		rec.StartTS = &start
		rec.EndTS = &end
		rec.Snippet = firstUserSnippet(events)
	}

	if err := d.Store.UpsertSession(rec); err != nil {
		d.Log.Error("failed to register session", map[string]interface{}{
			"session": session.SessionID, "error": err.Error(),
		})
		return false, scanned, 0
	}
	d.upsertFile(session.PrimaryFile, session.SessionID, index.RolePrimary, size, modTime)
	for _, aux := range session.AuxiliaryFiles {
		if info, err := os.Stat(aux); err == nil {
			d.upsertFile(aux, session.SessionID, index.RoleAuxiliary, info.Size(), info.ModTime().UTC())
		}
	}

	if hash != "" {
		now := d.now().UTC()
		_ = d.Store.UpsertProject(index.ProjectRecord{
			Hash:          hash,
			RootPath:      session.ProjectPath,
			LastScannedAt: &now,
		})
	}

	report(SessionRegistered{ID: session.SessionID})
	return true, scanned, 0
}

func (d *Driver) upsertFile(path, sessionID string, role int, size int64, modTime time.Time) {
	if err := d.Store.UpsertLogFile(index.LogFileRecord{
		Path:      path,
		SessionID: sessionID,
		Role:      role,
		FileSize:  &size,
		ModTime:   &modTime,
	}); err != nil {
		d.Log.Error("failed to upsert log file", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
	}
}

func (d *Driver) removeVanished(known []index.LogFileRecord) {
	for _, rec := range known {
		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			_ = d.Store.RemoveLogFile(rec.Path)
		}
	}
}

func firstUserSnippet(events []event.Event) string {
	for _, e := range events {
		if user, ok := e.Payload.(event.User); ok {
			text := user.Text
			if len(text) > snippetMax {
				text = text[:snippetMax]
			}
			return text
		}
	}
	return ""
}

// LoadSession assembles a session from its indexed files, primary first,
// tagging the result with the index's project hash and provider.
func LoadSession(store *index.Store, sessionID string) (*assemble.Session, error) {
	rec, err := store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	files, err := store.GetSessionFiles(sessionID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("session %s has no files on record", sessionID)
	}

	var events []event.Event
	for _, file := range files {
		adapter, err := provider.Create(rec.Provider)
		if err != nil {
			return nil, err
		}
		fileEvents, _, err := provider.NormalizeFile(adapter, file.Path)
		if err != nil {
			return nil, err
		}
		events = append(events, fileEvents...)
	}
	event.Sort(events)

	session := assemble.Assemble(events)
	if session == nil {
		return nil, fmt.Errorf("session %s has no events", sessionID)
	}
	session.ProjectHash = rec.ProjectHash
	session.Provider = rec.Provider
	return session, nil
}
