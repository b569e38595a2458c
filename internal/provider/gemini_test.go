package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/event"
)

const geminiDoc = `{
  "sessionId": "c1d2e3f4-0000-4000-8000-000000000042",
  "projectHash": "deadbeef",
  "startTime": "2026-01-04T12:00:00.000Z",
  "lastUpdated": "2026-01-04T12:01:00.000Z",
  "messages": [
    {
      "id": "msg-1",
      "type": "user",
      "timestamp": "2026-01-04T12:00:00.000Z",
      "content": "list the files"
    },
    {
      "id": "msg-2",
      "type": "gemini",
      "timestamp": "2026-01-04T12:00:05.000Z",
      "content": "Here are the files.",
      "model": "gemini-2.5-pro",
      "thoughts": [
        {"subject": "Plan", "description": "use the shell tool", "timestamp": "2026-01-04T12:00:02.000Z"}
      ],
      "toolCalls": [
        {
          "id": "tc-1",
          "name": "run_shell_command",
          "args": {"command": "ls"},
          "status": "success",
          "result": [
            {"functionResponse": {"id": "tc-1", "name": "run_shell_command", "response": {"output": "a.txt b.txt"}}}
          ]
        }
      ],
      "tokens": {"input": 1000, "output": 50, "cached": 800, "thoughts": 20, "tool": 10, "total": 1080}
    }
  ]
}`

func writeGeminiFixture(t *testing.T, dir string) string {
	t.Helper()
	chats := filepath.Join(dir, "hash", "chats")
	if err := os.MkdirAll(chats, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(chats, "session-42.json")
	if err := os.WriteFile(path, []byte(geminiDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGemini_NormalizeDocument(t *testing.T) {
	path := writeGeminiFixture(t, t.TempDir())
	events, stats, err := NormalizeFile(NewGeminiAdapter(), path)
	if err != nil {
		t.Fatalf("normalize error: %v", err)
	}
	if stats.MissingPairs != 0 {
		t.Errorf("missing pairs = %d", stats.MissingPairs)
	}

	session := assemble.Assemble(events)
	if session == nil || len(session.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %+v", session)
	}
	step := session.Turns[0].Steps[0]
	if step.Reasoning == nil || step.Message == nil {
		t.Fatal("expected reasoning and message in the step")
	}
	if len(step.Tools) != 1 || step.Tools[0].Result == nil {
		t.Fatal("expected one paired tool execution")
	}
	if step.Tools[0].Result.Output != "a.txt b.txt" {
		t.Errorf("result output = %q", step.Tools[0].Result.Output)
	}
	if step.Tools[0].Call.Kind != event.KindExecute {
		t.Errorf("run_shell_command should classify execute, got %s", step.Tools[0].Call.Kind)
	}
	if step.Usage == nil || step.Usage.CacheRead != 800 || step.Usage.Input != 200 {
		t.Errorf("usage = %+v", step.Usage)
	}
}

func TestGemini_ProbeRequiresSessionShape(t *testing.T) {
	dir := t.TempDir()
	path := writeGeminiFixture(t, dir)
	if !NewGeminiAdapter().Probe(path) {
		t.Error("a session document should probe true")
	}

	other := filepath.Join(dir, "session-notes.json")
	if err := os.WriteFile(other, []byte(`{"foo": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if NewGeminiAdapter().Probe(other) {
		t.Error("a json without sessionId/messages should probe false")
	}
}

func TestGemini_Discover(t *testing.T) {
	dir := t.TempDir()
	writeGeminiFixture(t, dir)

	sessions, err := NewGeminiAdapter().Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].SessionID != "c1d2e3f4-0000-4000-8000-000000000042" {
		t.Errorf("session id = %s", sessions[0].SessionID)
	}
	if sessions[0].StartedAt == nil {
		t.Error("expected startTime from the header")
	}
}

func TestGemini_MalformedDocumentFailsFile(t *testing.T) {
	dir := t.TempDir()
	chats := filepath.Join(dir, "hash", "chats")
	if err := os.MkdirAll(chats, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(chats, "session-bad.json")
	if err := os.WriteFile(path, []byte(`{"sessionId": "x", "messages": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NormalizeFile(NewGeminiAdapter(), path); err == nil {
		t.Error("a truncated document must fail the file")
	}
}

func TestGemini_NormalizeIsDeterministic(t *testing.T) {
	path := writeGeminiFixture(t, t.TempDir())
	first, _, err := NormalizeFile(NewGeminiAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := NormalizeFile(NewGeminiAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatal("event ids must be stable across runs")
		}
	}
}
