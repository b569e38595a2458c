package assemble

// EventCounts breaks down a session's composition by event type.
type EventCounts struct {
	Total             int `json:"total"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	ToolCalls         int `json:"tool_calls"`
	ReasoningBlocks   int `json:"reasoning_blocks"`
}

// Summary is the statistical view of a session used in listings.
type Summary struct {
	EventCounts EventCounts `json:"event_counts"`
}

// Summarize counts events by type across an assembled session. Tool calls
// count twice in the total (call + result slot).
func Summarize(session *Session) Summary {
	counts := EventCounts{UserMessages: len(session.Turns)}
	for _, turn := range session.Turns {
		counts.Total++
		for _, step := range turn.Steps {
			if step.Message != nil {
				counts.AssistantMessages++
				counts.Total++
			}
			if step.Reasoning != nil {
				counts.ReasoningBlocks++
				counts.Total++
			}
			counts.ToolCalls += len(step.Tools)
			counts.Total += len(step.Tools) * 2
			if step.Usage != nil {
				counts.Total++
			}
		}
	}
	return Summary{EventCounts: counts}
}
