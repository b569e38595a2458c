package event

import "strings"

// Filters selects or hides events by payload category. Only is applied
// first; Hide then removes from the remainder.
type Filters struct {
	Only []string
	Hide []string
}

func matchesPattern(p Payload, pattern string) bool {
	pattern = strings.ToLower(pattern)
	switch p.(type) {
	case User:
		return pattern == "user"
	case Message:
		return pattern == "assistant" || pattern == "message"
	case ToolCall, ToolResult:
		return pattern == "tool"
	case Reasoning:
		return pattern == "reasoning"
	case TokenUsage:
		return pattern == "token" || pattern == "tokenusage"
	case Notification:
		return pattern == "notification" || pattern == "info"
	}
	return false
}

// Filter returns the events matching the given filters, preserving order.
func Filter(events []Event, filters Filters) []Event {
	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		if len(filters.Only) > 0 {
			keep := false
			for _, pattern := range filters.Only {
				if matchesPattern(e.Payload, pattern) {
					keep = true
					break
				}
			}
			if !keep {
				continue
			}
		}
		hidden := false
		for _, pattern := range filters.Hide {
			if matchesPattern(e.Payload, pattern) {
				hidden = true
				break
			}
		}
		if !hidden {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
