// Package provider turns heterogeneous agent log files into canonical
// events. Each provider family implements the small closed Adapter
// interface {Probe, Discover, Parse, Normalizer}; a registry keyed by
// provider name creates adapters and detects them from paths.
package provider

import (
	"time"

	"github.com/lanegrid/agtrace/internal/event"
	"github.com/lanegrid/agtrace/internal/link"
)

// RawRecord is one provider-level record: a single JSONL line or a whole
// JSON document, before normalization.
type RawRecord struct {
	// Line is the 1-based line number, or 0 for document records.
	Line int
	Data []byte
}

// SpawnContext records where in the parent a subagent was invoked.
type SpawnContext struct {
	TurnIndex int       `json:"turn_index"`
	Timestamp time.Time `json:"timestamp"`
}

// DiscoveredSession is one session found during a log-root scan.
// AuxiliaryFiles lists secondary files carrying related activity (e.g. the
// rollout files of linked subagents); live session mode tails them
// alongside the primary.
type DiscoveredSession struct {
	SessionID       string
	PrimaryFile     string
	AuxiliaryFiles  []string
	ParentSessionID string
	SpawnContext    *SpawnContext
	// ProjectPath is the project working directory recorded by the
	// provider, when the format carries one.
	ProjectPath string
	// StartedAt is the session start timestamp from the header, when known.
	StartedAt *time.Time
}

// NormalizeStats counts per-file normalization outcomes. Individual record
// failures are suppressed at this boundary and surface only here.
type NormalizeStats struct {
	Records        int
	FailedRecords  int
	SkippedRecords int
	// Failures buckets failed records by category.
	Failures map[RecordErrorCategory]int
	// MissingPairs counts tool calls that never received a result.
	MissingPairs int
}

func (s *NormalizeStats) fail(category RecordErrorCategory) {
	s.FailedRecords++
	if s.Failures == nil {
		s.Failures = make(map[RecordErrorCategory]int)
	}
	s.Failures[category]++
}

// Normalizer holds the per-file state of normalization: the active stream,
// running parent ids, and pending tool-call correlations. A Normalizer is
// used for exactly one file.
type Normalizer interface {
	// Normalize converts one raw record into zero or more canonical
	// events. Record-level failures are counted and suppressed; the
	// returned error is reserved for failures that invalidate the whole
	// file (e.g. a missing required header).
	Normalize(rec RawRecord) ([]event.Event, error)
	// Finish flushes state held across records and returns the final
	// stats for the file.
	Finish() ([]event.Event, NormalizeStats)
}

// Adapter reads one provider family's on-disk log format.
type Adapter interface {
	// Name is the registry key, e.g. "claude".
	Name() string
	// Probe cheaply checks whether this adapter can handle the file,
	// looking at the filename, extension, and at most the first few lines.
	Probe(path string) bool
	// Discover recursively scans a log root for sessions.
	Discover(logRoot string) ([]DiscoveredSession, error)
	// Parse splits a file into raw records. Individually malformed
	// records are kept (normalization counts them); Parse fails only when
	// the file cannot be read at all.
	Parse(path string) ([]RawRecord, error)
	// Normalizer returns a fresh per-file normalizer.
	Normalizer(path string) Normalizer
}

// SpawnSource is implemented by adapters whose format records subagent
// spawns in the parent file (used by the subagent linker).
type SpawnSource interface {
	SpawnEvents(path string) ([]link.SpawnEvent, error)
}

// NormalizeFile runs the full probe-free pipeline for one file: parse,
// normalize every record, flush. Events are returned in file order.
func NormalizeFile(a Adapter, path string) ([]event.Event, NormalizeStats, error) {
	records, err := a.Parse(path)
	if err != nil {
		return nil, NormalizeStats{}, err
	}
	n := a.Normalizer(path)
	var events []event.Event
	for _, rec := range records {
		out, err := n.Normalize(rec)
		if err != nil {
			return nil, NormalizeStats{}, err
		}
		events = append(events, out...)
	}
	tail, stats := n.Finish()
	events = append(events, tail...)
	return event.DedupeByID(events), stats, nil
}
