package tokens

import (
	"math"
	"testing"
)

func TestResolve_LongestPrefixWins(t *testing.T) {
	lite, ok := Resolve("gemini-2.5-flash-lite-001")
	if !ok {
		t.Fatal("expected a match for gemini-2.5-flash-lite")
	}
	flash, ok := Resolve("gemini-2.5-flash-001")
	if !ok {
		t.Fatal("expected a match for gemini-2.5-flash")
	}
	if lite.MaxTokens != flash.MaxTokens {
		t.Error("flash and flash-lite share a window size")
	}

	if _, ok := Resolve("some-unknown-model"); ok {
		t.Error("unknown model should not resolve")
	}
}

func TestResolve_ClaudeFamily(t *testing.T) {
	spec, ok := Resolve("claude-sonnet-4-5-20250929")
	if !ok {
		t.Fatal("expected claude-sonnet-4 prefix to match")
	}
	if spec.MaxTokens != 200_000 {
		t.Errorf("expected 200000, got %d", spec.MaxTokens)
	}
}

func TestContextWindow_CacheReadAlwaysIncluded(t *testing.T) {
	limit := uint64(200_000)
	usage := ContextWindowUsage{
		FreshInput:    100,
		CacheCreation: 200,
		CacheRead:     5000,
		Output:        60,
		Limit:         &limit,
	}

	if got := usage.ContextWindowTokens(); got != 5360 {
		t.Errorf("context_window_tokens = %d, want 5360", got)
	}
	pct, ok := usage.Percent()
	if !ok {
		t.Fatal("expected a percentage with a limit set")
	}
	if pct < 2.67 || pct > 2.69 {
		t.Errorf("percentage = %f, want about 2.68", pct)
	}
}

func TestContextWindow_NoLimit(t *testing.T) {
	usage := ContextWindowUsage{FreshInput: 10, Output: 5}
	if _, ok := usage.Percent(); ok {
		t.Error("no percentage without a limit")
	}
	if usage.ContextWindowTokens() != 15 {
		t.Error("absolute counts still add up without a limit")
	}
}

func TestContextWindow_SaturatingArithmetic(t *testing.T) {
	usage := ContextWindowUsage{
		FreshInput: math.MaxUint64,
		CacheRead:  10,
		Output:     10,
	}
	if got := usage.ContextWindowTokens(); got != math.MaxUint64 {
		t.Errorf("expected saturation at max, got %d", got)
	}
}

func TestContextWindow_Add(t *testing.T) {
	a := ContextWindowUsage{FreshInput: 100, CacheCreation: 200, CacheRead: 300, Output: 50}
	b := ContextWindowUsage{FreshInput: 10, CacheCreation: 20, CacheRead: 30, Output: 5}
	total := a.Add(b)
	if total.ContextWindowTokens() != 715 {
		t.Errorf("sum = %d, want 715", total.ContextWindowTokens())
	}
}

func TestContextWindow_DefaultIsEmpty(t *testing.T) {
	var usage ContextWindowUsage
	if !usage.IsEmpty() {
		t.Error("zero value should be empty")
	}
	if usage.ContextWindowTokens() != 0 {
		t.Error("empty usage has zero tokens")
	}
}
