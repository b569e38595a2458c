package main

import (
	"fmt"
	"time"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/watch"
)

const previewMax = 72

func preview(s string) string {
	if len(s) > previewMax {
		return s[:previewMax] + "..."
	}
	return s
}

// printSession renders an assembled session as a turn/step timeline.
func printSession(session *assemble.Session) {
	fmt.Printf("Session %s (%s)\n", session.SessionID, session.Provider)
	fmt.Printf("Started %s, %d turns, %d steps, %d tool calls, %d tokens\n\n",
		session.StartTime.Format(time.RFC3339),
		session.Stats.Turns, session.Stats.Steps,
		session.Stats.ToolCalls, session.Stats.Tokens.Total)

	for i, turn := range session.Turns {
		fmt.Printf("[%d] user: %s\n", i+1, preview(turn.UserMessage.Content))
		for _, step := range turn.Steps {
			if step.Reasoning != nil {
				fmt.Printf("    thinking: %s\n", preview(step.Reasoning.Content))
			}
			for _, exec := range step.Tools {
				status := "pending"
				if exec.Result != nil {
					status = "ok"
					if exec.Result.IsError {
						status = "error"
					}
				}
				detail := exec.Call.Summary
				if detail == "" {
					detail = exec.Call.Name
				}
				fmt.Printf("    tool %s [%s]: %s\n", exec.Call.Name, status, preview(detail))
			}
			if step.Message != nil {
				fmt.Printf("    assistant: %s\n", preview(step.Message.Content))
			}
		}
	}
}

// printStreamEvent renders one live stream event.
func printStreamEvent(ev watch.StreamEvent) {
	switch v := ev.(type) {
	case watch.Attached:
		fmt.Printf("-- attached to %s\n", v.Path)
	case watch.Rotated:
		fmt.Printf("-- rotated to %s\n", v.Path)
	case watch.Waiting:
		fmt.Printf("-- waiting (idle %s)\n", v.Idle.Round(time.Second))
	case watch.Disconnected:
		fmt.Printf("-- disconnected: %s\n", v.Reason)
	case watch.Events:
		for _, e := range v.Events {
			fmt.Printf("%s %s\n", e.Timestamp.Format("15:04:05"), describePayload(e))
		}
		if v.ContextWindow != nil {
			total := v.ContextWindow.ContextWindowTokens()
			if pct, ok := v.ContextWindow.Percent(); ok {
				fmt.Printf("-- context: %d tokens (%.1f%%)\n", total, pct)
			} else {
				fmt.Printf("-- context: %d tokens\n", total)
			}
		}
	}
}
