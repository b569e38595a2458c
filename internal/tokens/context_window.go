package tokens

import "math"

// ContextWindowUsage is the occupancy of a model's input budget at a point
// in time. Cache-read tokens are always counted toward the window; that is
// a contract of this type, not an option.
type ContextWindowUsage struct {
	FreshInput    uint64  `json:"fresh_input"`
	CacheCreation uint64  `json:"cache_creation"`
	CacheRead     uint64  `json:"cache_read"`
	Output        uint64  `json:"output"`
	Limit         *uint64 `json:"limit,omitempty"`
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// InputTokens returns all tokens occupying the input side of the window.
func (u ContextWindowUsage) InputTokens() uint64 {
	return saturatingAdd(saturatingAdd(u.FreshInput, u.CacheCreation), u.CacheRead)
}

// ContextWindowTokens returns the total window occupancy:
// fresh_input + cache_creation + cache_read + output.
func (u ContextWindowUsage) ContextWindowTokens() uint64 {
	return saturatingAdd(u.InputTokens(), u.Output)
}

// Percent returns occupancy as a percentage of the limit, or false when no
// limit is resolved.
func (u ContextWindowUsage) Percent() (float64, bool) {
	if u.Limit == nil || *u.Limit == 0 {
		return 0, false
	}
	return float64(u.ContextWindowTokens()) / float64(*u.Limit) * 100, true
}

// Add returns the component-wise sum of two usages. The limit of the
// receiver is kept.
func (u ContextWindowUsage) Add(other ContextWindowUsage) ContextWindowUsage {
	return ContextWindowUsage{
		FreshInput:    saturatingAdd(u.FreshInput, other.FreshInput),
		CacheCreation: saturatingAdd(u.CacheCreation, other.CacheCreation),
		CacheRead:     saturatingAdd(u.CacheRead, other.CacheRead),
		Output:        saturatingAdd(u.Output, other.Output),
		Limit:         u.Limit,
	}
}

// IsEmpty reports whether every component is zero.
func (u ContextWindowUsage) IsEmpty() bool {
	return u.FreshInput == 0 && u.CacheCreation == 0 && u.CacheRead == 0 && u.Output == 0
}
