// Package watch tail-follows live session files, emits incremental
// canonical events with freshly assembled sessions, detects file rotation,
// and publishes context-window usage per emission.
package watch

import (
	"time"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/event"
	"github.com/lanegrid/agtrace/internal/tokens"
)

// State is the streamer's lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateAttached     State = "attached"
	StateStreaming    State = "streaming"
	StateWaiting      State = "waiting"
	StateDisconnected State = "disconnected"
)

// StreamEvent is the tagged sum subscribers receive. New variants may be
// added; no variant's payload shrinks.
type StreamEvent interface {
	streamEventType() string
}

// Attached fires when a file is successfully opened.
type Attached struct {
	SessionID string
	Path      string
}

// Events is one poll's batch: the new events plus sessions recomputed from
// the full event log held by the streamer. Subscribers observe monotone,
// append-only event sequences.
type Events struct {
	Events   []event.Event
	Sessions []*assemble.Session
	// ContextWindow reflects the most recent token usage on the main
	// stream; nil until one is seen.
	ContextWindow *tokens.ContextWindowUsage
}

// Rotated fires when the streamer switches to a newer file, or re-reads a
// truncated one from offset 0.
type Rotated struct {
	Path string
}

// Waiting fires when no new bytes arrived for the idle threshold and the
// provider has no newer file.
type Waiting struct {
	Idle time.Duration
}

// Disconnected is terminal; the subscriber channel closes after it.
type Disconnected struct {
	Reason string
}

func (Attached) streamEventType() string     { return "attached" }
func (Events) streamEventType() string       { return "events" }
func (Rotated) streamEventType() string      { return "rotated" }
func (Waiting) streamEventType() string      { return "waiting" }
func (Disconnected) streamEventType() string { return "disconnected" }
