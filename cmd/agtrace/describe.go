package main

import (
	"fmt"

	"github.com/lanegrid/agtrace/internal/event"
)

// describePayload renders one canonical event for the live tail.
func describePayload(e event.Event) string {
	switch p := e.Payload.(type) {
	case event.User:
		return "user: " + preview(p.Text)
	case event.Message:
		return "assistant: " + preview(p.Text)
	case event.Reasoning:
		return "thinking: " + preview(p.Text)
	case event.ToolCall:
		detail := p.Summary
		if detail == "" {
			detail = string(p.Kind)
		}
		return fmt.Sprintf("tool %s: %s", p.Name, preview(detail))
	case event.ToolResult:
		if p.IsError {
			return "tool error: " + preview(p.Output)
		}
		return "tool ok: " + preview(p.Output)
	case event.TokenUsage:
		return fmt.Sprintf("tokens: %d total", p.Total)
	case event.Notification:
		return "note: " + preview(p.Text)
	}
	return "event"
}
