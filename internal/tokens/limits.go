// Package tokens resolves model context-window limits and computes
// context-window occupancy from token-usage snapshots.
package tokens

import "strings"

// ModelSpec describes the context budget of a model family.
type ModelSpec struct {
	// MaxTokens is the model's context-window size.
	MaxTokens uint64
	// CompactionBufferPct is the fraction of the window agents reserve
	// before triggering compaction. Observability only; no action is taken
	// here.
	CompactionBufferPct float64
}

type modelEntry struct {
	prefix string
	spec   ModelSpec
}

// Known model-name prefixes. Resolution picks the longest matching prefix,
// so more specific entries win regardless of table order.
var modelTable = []modelEntry{
	{"claude-opus-4", ModelSpec{MaxTokens: 200_000, CompactionBufferPct: 0.225}},
	{"claude-sonnet-4", ModelSpec{MaxTokens: 200_000, CompactionBufferPct: 0.225}},
	{"claude-haiku-4", ModelSpec{MaxTokens: 200_000, CompactionBufferPct: 0.225}},
	{"claude-3-5", ModelSpec{MaxTokens: 200_000, CompactionBufferPct: 0.225}},
	{"gpt-5", ModelSpec{MaxTokens: 272_000, CompactionBufferPct: 0.1}},
	{"gpt-5-codex", ModelSpec{MaxTokens: 272_000, CompactionBufferPct: 0.1}},
	{"o3", ModelSpec{MaxTokens: 200_000, CompactionBufferPct: 0.1}},
	{"gemini-2.5-pro", ModelSpec{MaxTokens: 1_048_576, CompactionBufferPct: 0.1}},
	{"gemini-2.5-flash", ModelSpec{MaxTokens: 1_048_576, CompactionBufferPct: 0.1}},
	{"gemini-2.5-flash-lite", ModelSpec{MaxTokens: 1_048_576, CompactionBufferPct: 0.1}},
	{"gemini-2.0-flash", ModelSpec{MaxTokens: 1_048_576, CompactionBufferPct: 0.1}},
	{"gemini-2.0-flash-lite", ModelSpec{MaxTokens: 1_048_576, CompactionBufferPct: 0.1}},
}

// Resolve returns the spec for the longest table prefix matching model, or
// false when no prefix matches. Callers emit absolute counts with no limit
// on a miss.
func Resolve(model string) (ModelSpec, bool) {
	var best *modelEntry
	for i := range modelTable {
		entry := &modelTable[i]
		if !strings.HasPrefix(model, entry.prefix) {
			continue
		}
		if best == nil || len(entry.prefix) > len(best.prefix) {
			best = entry
		}
	}
	if best == nil {
		return ModelSpec{}, false
	}
	return best.spec, true
}
