// Package link correlates subagent session files with the spawn records in
// their parent file by subagent type and time proximity.
package link

import "time"

// DefaultWindow is the maximum spawn-to-header delta accepted as a match.
const DefaultWindow = 100 * time.Millisecond

// SpawnEvent is a spawn record observed in a parent session file.
type SpawnEvent struct {
	Timestamp    time.Time
	SubagentType string
	// TurnIndex is the parent turn during which the spawn happened.
	TurnIndex int
}

// SubagentHeader is the identifying header of a candidate subagent file.
type SubagentHeader struct {
	SessionID    string
	SubagentType string
	Timestamp    time.Time
}

// Result is an accepted linkage.
type Result struct {
	// Spawn is the matched parent spawn record.
	Spawn SpawnEvent
	// Delta is the absolute spawn-to-header distance.
	Delta time.Duration
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// Match finds the spawn record of matching subagent type whose timestamp is
// closest to the subagent header, and accepts it iff the delta is within
// window (0 means DefaultWindow). It is a pure function of its inputs;
// headers with no spawn inside the window stay orphans and return false.
func Match(spawns []SpawnEvent, header SubagentHeader, window time.Duration) (Result, bool) {
	if window <= 0 {
		window = DefaultWindow
	}

	var best *SpawnEvent
	var bestDelta time.Duration
	for i := range spawns {
		spawn := &spawns[i]
		if spawn.SubagentType != header.SubagentType {
			continue
		}
		delta := absDelta(spawn.Timestamp, header.Timestamp)
		if best == nil || delta < bestDelta {
			best = spawn
			bestDelta = delta
		}
	}
	if best == nil || bestDelta > window {
		return Result{}, false
	}
	return Result{Spawn: *best, Delta: bestDelta}, true
}
