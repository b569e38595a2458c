package assemble

import (
	"time"

	"github.com/lanegrid/agtrace/internal/event"
)

// Assemble folds an ordered-by-timestamp event sequence for one session
// into a Session. Returns nil for an empty input. Given the same input
// sequence the output is identical; assembling a prefix of the input
// yields a structural prefix of the result, which the live streamer relies
// on.
func Assemble(events []event.Event) *Session {
	if len(events) == 0 {
		return nil
	}

	session := &Session{
		SessionID: events[0].SessionID,
		StartTime: events[0].Timestamp,
		EndTime:   events[len(events)-1].Timestamp,
	}

	var builder *turnBuilder
	for i := range events {
		e := &events[i]
		if user, ok := e.Payload.(event.User); ok {
			if builder != nil {
				session.Turns = append(session.Turns, builder.build())
			}
			builder = newTurnBuilder(e, user)
			continue
		}
		// Events before the first user message have no open turn and are
		// dropped, matching historical behavior.
		if builder != nil {
			builder.add(e)
		}
	}
	if builder != nil {
		session.Turns = append(session.Turns, builder.build())
	}

	session.Stats = computeSessionStats(session)
	return session
}

// execRef addresses a tool execution across the closed steps and the
// still-open one. Indices stay valid because closed steps are append-only.
type execRef struct {
	// step is the index into turn.Steps, or -1 for the open step.
	step int
	tool int
}

type turnBuilder struct {
	turn    Turn
	current Step
	// pending maps call ids to unresolved executions.
	pending map[string]execRef
	// order keeps unresolved executions fillable in arrival order for
	// providers without correlation ids.
	order []execRef
	last  time.Time
}

func newTurnBuilder(e *event.Event, user event.User) *turnBuilder {
	return &turnBuilder{
		turn: Turn{
			UserMessage: UserMessage{EventID: e.ID, Content: user.Text},
			StartTime:   e.Timestamp,
		},
		pending: make(map[string]execRef),
		last:    e.Timestamp,
	}
}

func (b *turnBuilder) exec(ref execRef) *ToolExecution {
	if ref.step < 0 {
		return &b.current.Tools[ref.tool]
	}
	return &b.turn.Steps[ref.step].Tools[ref.tool]
}

func (b *turnBuilder) closeStep() {
	if b.current.isEmpty() {
		b.current = Step{}
		return
	}
	b.turn.Steps = append(b.turn.Steps, b.current)
	closed := len(b.turn.Steps) - 1
	// Re-address refs that pointed into the open step.
	for id, ref := range b.pending {
		if ref.step < 0 {
			b.pending[id] = execRef{step: closed, tool: ref.tool}
		}
	}
	for i, ref := range b.order {
		if ref.step < 0 {
			b.order[i] = execRef{step: closed, tool: ref.tool}
		}
	}
	b.current = Step{}
}

func (b *turnBuilder) add(e *event.Event) {
	if e.Timestamp.After(b.last) {
		b.last = e.Timestamp
	}
	switch payload := e.Payload.(type) {
	case event.Message:
		// A second message within the turn starts a new step.
		if b.current.Message != nil {
			b.closeStep()
		}
		b.current.Message = &MessageBlock{EventID: e.ID, Content: payload.Text, Timestamp: e.Timestamp}
	case event.Reasoning:
		// Consecutive reasoning attaches to the current step; the last
		// block wins the slot but never splits the step.
		b.current.Reasoning = &ReasoningBlock{EventID: e.ID, Content: payload.Text, Timestamp: e.Timestamp}
	case event.ToolCall:
		b.current.Tools = append(b.current.Tools, ToolExecution{Call: ToolCallBlock{
			EventID:   e.ID,
			Name:      payload.Name,
			Origin:    payload.Origin,
			Kind:      payload.Kind,
			CallID:    payload.CallID,
			Summary:   payload.Summary,
			Timestamp: e.Timestamp,
		}})
		ref := execRef{step: -1, tool: len(b.current.Tools) - 1}
		if payload.CallID != "" {
			b.pending[payload.CallID] = ref
		}
		b.order = append(b.order, ref)
	case event.ToolResult:
		result := &ToolResultBlock{
			EventID:   e.ID,
			Output:    payload.Output,
			IsError:   payload.IsError,
			Timestamp: e.Timestamp,
		}
		if payload.CallID != "" {
			if ref, ok := b.pending[payload.CallID]; ok {
				b.exec(ref).Result = result
				delete(b.pending, payload.CallID)
				b.dropFromOrder(ref)
			}
			return
		}
		// Without correlation ids the next result fills the oldest
		// unresolved execution.
		for i, ref := range b.order {
			exec := b.exec(ref)
			if exec.Result == nil {
				exec.Result = result
				b.order = append(b.order[:i], b.order[i+1:]...)
				if exec.Call.CallID != "" {
					delete(b.pending, exec.Call.CallID)
				}
				return
			}
		}
	case event.TokenUsage:
		// Last writer wins within a step.
		usage := payload
		b.current.Usage = &usage
	case event.Notification:
		// Notifications extend the turn span but carry no step content.
	}
}

func (b *turnBuilder) dropFromOrder(target execRef) {
	for i, ref := range b.order {
		if ref == target {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

func (b *turnBuilder) build() Turn {
	b.closeStep()
	b.turn.EndTime = b.last

	stats := TurnStats{
		Steps:      len(b.turn.Steps),
		DurationMs: b.last.Sub(b.turn.StartTime).Milliseconds(),
	}
	for _, step := range b.turn.Steps {
		stats.ToolCalls += len(step.Tools)
		if step.Usage != nil {
			if step.Usage.Total > stats.TotalTokens {
				stats.TotalTokens = step.Usage.Total
			}
			stats.OutputTokens += step.Usage.Output
		}
	}
	b.turn.Stats = stats
	return b.turn
}

func computeSessionStats(session *Session) SessionStats {
	stats := SessionStats{
		Turns:      len(session.Turns),
		DurationMs: session.EndTime.Sub(session.StartTime).Milliseconds(),
	}
	var last *event.TokenUsage
	for t := range session.Turns {
		turn := &session.Turns[t]
		stats.Steps += len(turn.Steps)
		for s := range turn.Steps {
			step := &turn.Steps[s]
			stats.ToolCalls += len(step.Tools)
			for _, exec := range step.Tools {
				if exec.Result == nil {
					stats.MissingPairs++
				}
			}
			if step.Usage != nil {
				last = step.Usage
				stats.Tokens.Output += step.Usage.Output
				stats.Tokens.Input += step.Usage.Input
				stats.Tokens.CacheCreation += step.Usage.CacheCreation
				stats.Tokens.CacheRead += step.Usage.CacheRead
			}
		}
	}
	// Token totals are cumulative across the session: the last snapshot's
	// running total is authoritative when larger than the per-step sum.
	if last != nil {
		stats.Tokens.Total = stats.Tokens.Input + stats.Tokens.Output +
			stats.Tokens.CacheCreation + stats.Tokens.CacheRead
		if last.Total > stats.Tokens.Total {
			stats.Tokens.Total = last.Total
		}
	}
	return stats
}
