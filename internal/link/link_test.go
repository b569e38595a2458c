package link

import (
	"testing"
	"time"
)

func ts(offset time.Duration) time.Time {
	return time.Date(2026, 1, 4, 12, 5, 9, 0, time.UTC).Add(offset)
}

func TestMatch_ClosestSpawnWithinWindow(t *testing.T) {
	spawns := []SpawnEvent{
		{Timestamp: ts(200 * time.Millisecond), SubagentType: "review", TurnIndex: 1},
		{Timestamp: ts(5300 * time.Millisecond), SubagentType: "review", TurnIndex: 3},
	}

	first, ok := Match(spawns, SubagentHeader{
		SessionID:    "019b88e5-a2e4-7b90-8953-38fce393c653",
		SubagentType: "review",
		Timestamp:    ts(225 * time.Millisecond),
	}, 0)
	if !ok {
		t.Fatal("expected a link at 25ms delta")
	}
	if first.Spawn.TurnIndex != 1 {
		t.Errorf("expected the first spawn, got turn %d", first.Spawn.TurnIndex)
	}
	if first.Delta != 25*time.Millisecond {
		t.Errorf("delta = %s, want 25ms", first.Delta)
	}

	second, ok := Match(spawns, SubagentHeader{
		SubagentType: "review",
		Timestamp:    ts(5325 * time.Millisecond),
	}, 0)
	if !ok || second.Spawn.TurnIndex != 3 {
		t.Errorf("expected the second spawn, got %+v ok=%v", second, ok)
	}
}

func TestMatch_OrphanOutsideWindow(t *testing.T) {
	spawns := []SpawnEvent{
		{Timestamp: ts(200 * time.Millisecond), SubagentType: "review", TurnIndex: 1},
		{Timestamp: ts(5300 * time.Millisecond), SubagentType: "review", TurnIndex: 3},
	}
	_, ok := Match(spawns, SubagentHeader{
		SubagentType: "review",
		Timestamp:    ts(2000 * time.Millisecond),
	}, 0)
	if ok {
		t.Error("a header 1.8s from the nearest spawn must stay orphan")
	}
}

func TestMatch_RequiresMatchingSubagentType(t *testing.T) {
	spawns := []SpawnEvent{
		{Timestamp: ts(0), SubagentType: "review", TurnIndex: 0},
	}
	_, ok := Match(spawns, SubagentHeader{
		SubagentType: "test",
		Timestamp:    ts(10 * time.Millisecond),
	}, 0)
	if ok {
		t.Error("mismatched subagent types must not link")
	}
}

func TestMatch_ExactWindowBoundaryAccepted(t *testing.T) {
	spawns := []SpawnEvent{
		{Timestamp: ts(0), SubagentType: "review", TurnIndex: 0},
	}
	result, ok := Match(spawns, SubagentHeader{
		SubagentType: "review",
		Timestamp:    ts(100 * time.Millisecond),
	}, 0)
	if !ok {
		t.Fatal("delta exactly equal to the window must link")
	}
	if result.Delta != DefaultWindow {
		t.Errorf("delta = %s, want %s", result.Delta, DefaultWindow)
	}
}

func TestMatch_PureFunction(t *testing.T) {
	spawns := []SpawnEvent{
		{Timestamp: ts(0), SubagentType: "review", TurnIndex: 2},
	}
	header := SubagentHeader{SubagentType: "review", Timestamp: ts(40 * time.Millisecond)}
	a, okA := Match(spawns, header, 0)
	b, okB := Match(spawns, header, 0)
	if okA != okB || a != b {
		t.Error("identical inputs must produce identical linkage")
	}
}
