package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/event"
)

const claudeSessionID = "fb3cff44-0000-4000-8000-000000000001"

func claudeLine(uuidSuffix int, lineType, rest string) string {
	return fmt.Sprintf(`{"type":%q,"uuid":"aaaaaaaa-0000-4000-8000-%012d","sessionId":%q,"timestamp":"2026-01-04T12:00:%02d.000Z","cwd":"/home/user/repo",%s}`,
		lineType, uuidSuffix, claudeSessionID, uuidSuffix%60, rest)
}

func writeClaudeFixture(t *testing.T, dir string) string {
	t.Helper()
	lines := []string{}
	seq := 0
	for turn := 0; turn < 3; turn++ {
		seq++
		lines = append(lines, claudeLine(seq, "user",
			`"message":{"role":"user","content":"run the tests"}`))
		seq++
		lines = append(lines, claudeLine(seq, "assistant",
			`"message":{"role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"on it"},{"type":"tool_use","id":"toolu_`+fmt.Sprint(turn)+`","name":"Bash","input":{"command":"go test ./..."}}],"usage":{"input_tokens":100,"output_tokens":20,"cache_read_input_tokens":500}}`))
		seq++
		lines = append(lines, claudeLine(seq, "user",
			`"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_`+fmt.Sprint(turn)+`","content":"ok","is_error":false}]}`))
		seq++
		lines = append(lines, claudeLine(seq, "assistant",
			`"message":{"role":"assistant","content":[{"type":"text","text":"tests pass"}]}`))
	}
	path := filepath.Join(dir, claudeSessionID+".jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClaude_ThreeTurnParse(t *testing.T) {
	path := writeClaudeFixture(t, t.TempDir())
	adapter := NewClaudeAdapter()

	events, stats, err := NormalizeFile(adapter, path)
	if err != nil {
		t.Fatalf("normalize error: %v", err)
	}
	if stats.FailedRecords != 0 {
		t.Errorf("expected no failed records, got %d", stats.FailedRecords)
	}
	if stats.MissingPairs != 0 {
		t.Errorf("expected no missing pairs, got %d", stats.MissingPairs)
	}

	session := assemble.Assemble(events)
	if session == nil {
		t.Fatal("expected a session")
	}
	if len(session.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(session.Turns))
	}
	for i, turn := range session.Turns {
		if len(turn.Steps) < 1 {
			t.Errorf("turn %d: expected at least 1 step", i)
		}
		paired := 0
		for _, step := range turn.Steps {
			for _, exec := range step.Tools {
				if exec.Result != nil {
					paired++
				}
				if exec.Call.Kind != event.KindExecute {
					t.Errorf("Bash should classify as execute, got %s", exec.Call.Kind)
				}
			}
		}
		if paired != 1 {
			t.Errorf("turn %d: expected exactly 1 paired execution, got %d", i, paired)
		}
	}
}

func TestClaude_NormalizeIsDeterministic(t *testing.T) {
	path := writeClaudeFixture(t, t.TempDir())
	adapter := NewClaudeAdapter()

	first, _, err := NormalizeFile(adapter, path)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := NormalizeFile(adapter, path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("normalize(parse(f)) must be deterministic")
	}
}

func TestClaude_MalformedRecordSuppressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, claudeSessionID+".jsonl")
	content := claudeLine(1, "user", `"message":{"role":"user","content":"hi"}`) + "\n" +
		"{this is not json\n" +
		claudeLine(2, "assistant", `"message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}`) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	events, stats, err := NormalizeFile(NewClaudeAdapter(), path)
	if err != nil {
		t.Fatalf("a single bad record must not fail the file: %v", err)
	}
	if stats.FailedRecords != 1 {
		t.Errorf("failed records = %d, want 1", stats.FailedRecords)
	}
	if len(events) != 2 {
		t.Errorf("expected the two good events, got %d", len(events))
	}
}

func TestClaude_DuplicateLineLaterWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, claudeSessionID+".jsonl")
	content := claudeLine(1, "user", `"message":{"role":"user","content":"draft"}`) + "\n" +
		claudeLine(1, "user", `"message":{"role":"user","content":"final"}`) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	events, _, err := NormalizeFile(NewClaudeAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("duplicates must collapse to one event, got %d", len(events))
	}
	if events[0].Payload.(event.User).Text != "final" {
		t.Error("the later occurrence wins")
	}
}

func TestClaude_SidechainStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, claudeSessionID+".jsonl")
	line := fmt.Sprintf(`{"type":"assistant","uuid":"bbbbbbbb-0000-4000-8000-000000000001","sessionId":%q,"timestamp":"2026-01-04T12:00:01.000Z","isSidechain":true,"agentId":"agent-7","message":{"role":"assistant","content":[{"type":"text","text":"side"}]}}`, claudeSessionID)
	if err := os.WriteFile(path, []byte(line+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	events, _, err := NormalizeFile(NewClaudeAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Stream.Type != event.StreamSidechain || events[0].Stream.AgentID != "agent-7" {
		t.Errorf("expected sidechain stream, got %+v", events[0].Stream)
	}
}

func TestClaude_EmptyFileNoEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, claudeSessionID+".jsonl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	events, _, err := NormalizeFile(NewClaudeAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("empty file must yield no events, got %d", len(events))
	}
	if assemble.Assemble(events) != nil {
		t.Error("empty file must yield no session")
	}
}

func TestClaude_Discover(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "-home-user-repo")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeClaudeFixture(t, projectDir)
	// A non-uuid jsonl is ignored.
	if err := os.WriteFile(filepath.Join(projectDir, "notes.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sessions, err := NewClaudeAdapter().Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].SessionID != claudeSessionID {
		t.Errorf("session id = %s", sessions[0].SessionID)
	}
	if sessions[0].ProjectPath != "/home/user/repo" {
		t.Errorf("project path = %s", sessions[0].ProjectPath)
	}
	if sessions[0].StartedAt == nil {
		t.Error("expected a start timestamp from the first line")
	}
}

func TestClaude_TokenUsageCarriesCacheFields(t *testing.T) {
	path := writeClaudeFixture(t, t.TempDir())
	events, _, err := NormalizeFile(NewClaudeAdapter(), path)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range events {
		if usage, ok := e.Payload.(event.TokenUsage); ok {
			found = true
			if usage.CacheRead != 500 {
				t.Errorf("cache_read = %d, want 500", usage.CacheRead)
			}
			if usage.Total != 620 {
				t.Errorf("total = %d, want 620", usage.Total)
			}
			if model, _ := e.Metadata["model"].(string); model != "claude-sonnet-4-5" {
				t.Errorf("model metadata = %q", model)
			}
			break
		}
	}
	if !found {
		t.Fatal("expected a token usage event")
	}
}

func TestDetectFromPath(t *testing.T) {
	if _, err := DetectFromPath("/home/u/.claude/projects/x/y.jsonl"); err != nil {
		t.Errorf("claude path should detect: %v", err)
	}
	if _, err := DetectFromPath("/home/u/.codex/sessions/rollout-1.jsonl"); err != nil {
		t.Errorf("codex path should detect: %v", err)
	}
	if _, err := DetectFromPath("/tmp/random.log"); err == nil {
		t.Error("unknown path must return an error")
	}
}

func TestClassify_Defaults(t *testing.T) {
	origin, kind := Classify("SomethingNew", claudeTools)
	if origin != event.OriginSystem || kind != event.KindOther {
		t.Errorf("unknown tool defaults to (system, other), got (%s, %s)", origin, kind)
	}
	origin, kind = Classify("mcp__sqlite__query", claudeTools)
	if origin != event.OriginMcp || kind != event.KindOther {
		t.Errorf("mcp-prefixed tool is (mcp, other), got (%s, %s)", origin, kind)
	}
}

func TestClaude_ProbeByFirstLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, uuid.New().String()+".jsonl")
	if err := os.WriteFile(path, []byte(`{"parentUuid":null,"type":"user"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !NewClaudeAdapter().Probe(path) {
		t.Error("a jsonl with parentUuid should probe true")
	}
	if NewClaudeAdapter().Probe(filepath.Join(dir, "rollout-2026.jsonl")) {
		t.Error("rollout files belong to codex")
	}
}
