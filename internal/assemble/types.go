// Package assemble folds a linear canonical event stream into the
// Turn/Step/Tool session hierarchy with aggregated token and timing
// statistics. Assembly is deterministic and side-effect free.
package assemble

import (
	"time"

	"github.com/google/uuid"

	"github.com/lanegrid/agtrace/internal/event"
)

// Session is the assembled form of one agent conversation.
type Session struct {
	SessionID uuid.UUID `json:"session_id"`
	// ProjectHash and Provider are populated when the session was loaded
	// through the index; empty when assembling straight from events.
	ProjectHash string       `json:"project_hash,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Turns       []Turn       `json:"turns"`
	Stats       SessionStats `json:"stats"`
}

// UserMessage is the user event that opened a turn.
type UserMessage struct {
	EventID uuid.UUID `json:"event_id"`
	Content string    `json:"content"`
}

// Turn spans from one user message up to (but not including) the next.
type Turn struct {
	UserMessage UserMessage `json:"user_message"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Steps       []Step      `json:"steps"`
	Stats       TurnStats   `json:"stats"`
}

// MessageBlock is visible assistant output within a step.
type MessageBlock struct {
	EventID   uuid.UUID `json:"event_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ReasoningBlock is hidden assistant thinking within a step.
type ReasoningBlock struct {
	EventID   uuid.UUID `json:"event_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCallBlock is the call half of a tool execution.
type ToolCallBlock struct {
	EventID   uuid.UUID        `json:"event_id"`
	Name      string           `json:"name"`
	Origin    event.ToolOrigin `json:"origin"`
	Kind      event.ToolKind   `json:"kind"`
	CallID    string           `json:"call_id,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ToolResultBlock is the result half of a tool execution.
type ToolResultBlock struct {
	EventID   uuid.UUID `json:"event_id"`
	Output    string    `json:"output"`
	IsError   bool      `json:"is_error"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolExecution pairs a call with its result. Result stays nil when no
// result ever arrived; the missing-pair metric counts those.
type ToolExecution struct {
	Call   ToolCallBlock    `json:"call"`
	Result *ToolResultBlock `json:"result,omitempty"`
}

// IsError reports whether the execution completed with an error result.
func (t ToolExecution) IsError() bool {
	return t.Result != nil && t.Result.IsError
}

// Step is a maximal group of assistant activity bounded by assistant
// messages: at most one message, at most one reasoning block, a tool
// sequence, and at most one token-usage snapshot.
type Step struct {
	Message   *MessageBlock     `json:"message,omitempty"`
	Reasoning *ReasoningBlock   `json:"reasoning,omitempty"`
	Tools     []ToolExecution   `json:"tools,omitempty"`
	Usage     *event.TokenUsage `json:"usage,omitempty"`
}

func (s *Step) isEmpty() bool {
	return s.Message == nil && s.Reasoning == nil && len(s.Tools) == 0 && s.Usage == nil
}

// TurnStats aggregates one turn.
type TurnStats struct {
	Steps        int   `json:"steps"`
	ToolCalls    int   `json:"tool_calls"`
	DurationMs   int64 `json:"duration_ms"`
	TotalTokens  uint64 `json:"total_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
}

// TokenTotals aggregates token accounting across a session. Input, Output,
// CacheCreation and CacheRead sum the step snapshots; Total is the sum of
// those four, or the last snapshot's Total when that is larger, since
// providers that report cumulatively carry the running total in their last
// snapshot.
type TokenTotals struct {
	Input         uint64 `json:"input"`
	Output        uint64 `json:"output"`
	Total         uint64 `json:"total"`
	CacheCreation uint64 `json:"cache_creation"`
	CacheRead     uint64 `json:"cache_read"`
}

// SessionStats aggregates the whole session.
type SessionStats struct {
	Turns      int         `json:"turns"`
	Steps      int         `json:"steps"`
	ToolCalls  int         `json:"tool_calls"`
	DurationMs int64       `json:"duration_ms"`
	Tokens     TokenTotals `json:"tokens"`
	// MissingPairs counts tool calls that never received a result.
	MissingPairs int `json:"missing_pairs"`
}
