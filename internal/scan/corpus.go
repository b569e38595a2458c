package scan

import (
	"github.com/lanegrid/agtrace/internal/index"
)

// CorpusStats is an aggregate view over recent sessions.
type CorpusStats struct {
	SampleSize     int
	TotalToolCalls int
	TotalFailures  int
	MaxDurationMs  int64
}

// CorpusOverview assembles the newest sessions (optionally scoped to one
// project) and aggregates tool-call and failure counts. Sessions that no
// longer parse are skipped; they still count toward the sample.
func CorpusOverview(store *index.Store, projectHash string, limit int) (CorpusStats, error) {
	page, err := store.ListSessions(projectHash, limit, "")
	if err != nil {
		return CorpusStats{}, err
	}

	stats := CorpusStats{SampleSize: len(page.Sessions)}
	for _, rec := range page.Sessions {
		session, err := LoadSession(store, rec.SessionID)
		if err != nil {
			continue
		}
		for _, turn := range session.Turns {
			for _, step := range turn.Steps {
				stats.TotalToolCalls += len(step.Tools)
				for _, exec := range step.Tools {
					if exec.IsError() {
						stats.TotalFailures++
					}
				}
			}
			if turn.Stats.DurationMs > stats.MaxDurationMs {
				stats.MaxDurationMs = turn.Stats.DurationMs
			}
		}
	}
	return stats, nil
}
