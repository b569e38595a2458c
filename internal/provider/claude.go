package provider

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lanegrid/agtrace/internal/event"
)

// Scanner sizing for JSONL logs: lines with embedded file contents can get
// very large.
const (
	initialScanBufSize = 64 * 1024
	maxLineSize        = 64 * 1024 * 1024
)

// ClaudeAdapter reads Claude Code conversation logs: one JSON object per
// line, assistant content blocks paired with tool_use/tool_result by the
// correlation id embedded in the block.
type ClaudeAdapter struct{}

// NewClaudeAdapter returns the Claude Code adapter.
func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{}
}

// Name implements Adapter.
func (a *ClaudeAdapter) Name() string { return "claude" }

// Probe accepts .jsonl files whose path or first line identifies a Claude
// Code conversation log.
func (a *ClaudeAdapter) Probe(path string) bool {
	if filepath.Ext(path) != ".jsonl" {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), "rollout-") {
		return false
	}
	if strings.Contains(filepath.ToSlash(path), ".claude/") {
		return true
	}
	line, err := readFirstLine(path)
	if err != nil {
		return false
	}
	return gjson.GetBytes(line, "parentUuid").Exists() ||
		gjson.GetBytes(line, "sessionId").Exists()
}

// Discover walks the log root. Each <project-dir>/<session-uuid>.jsonl file
// is one session; sidechains live inside the same file.
func (a *ClaudeAdapter) Discover(logRoot string) ([]DiscoveredSession, error) {
	var sessions []DiscoveredSession
	err := filepath.WalkDir(logRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		if _, err := uuid.Parse(base); err != nil {
			return nil
		}
		session := DiscoveredSession{SessionID: base, PrimaryFile: path}
		if line, err := readFirstLine(path); err == nil {
			if cwd := gjson.GetBytes(line, "cwd"); cwd.Exists() {
				session.ProjectPath = cwd.String()
			}
			if ts := gjson.GetBytes(line, "timestamp"); ts.Exists() {
				if parsed, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
					utc := parsed.UTC()
					session.StartedAt = &utc
				}
			}
		}
		sessions = append(sessions, session)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", logRoot, err)
	}
	return sessions, nil
}

// Parse splits the file into one raw record per non-empty line.
func (a *ClaudeAdapter) Parse(path string) ([]RawRecord, error) {
	return parseJSONLines(path)
}

// Normalizer implements Adapter.
func (a *ClaudeAdapter) Normalizer(path string) Normalizer {
	return newClaudeNormalizer(path)
}

type claudeNormalizer struct {
	sessionID    uuid.UUID
	namespace    uuid.UUID
	stats        NormalizeStats
	pendingCalls map[string]bool
	// lineEvents maps a line uuid to the id of its first emitted event,
	// for parentUuid chaining.
	lineEvents map[string]uuid.UUID
}

func newClaudeNormalizer(path string) *claudeNormalizer {
	base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	sessionID, err := uuid.Parse(base)
	if err != nil {
		// Fall back to a deterministic id derived from the path so the
		// file is still normalizable for diagnostics.
		sessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path))
	}
	return &claudeNormalizer{
		sessionID:    sessionID,
		namespace:    uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID.String())),
		pendingCalls: make(map[string]bool),
		lineEvents:   make(map[string]uuid.UUID),
	}
}

// eventID derives a deterministic event id from a line uuid and a
// per-line discriminator, so re-normalizing the same file reproduces the
// same ids and later duplicates replace earlier ones.
func (n *claudeNormalizer) eventID(lineUUID string, discriminator string) uuid.UUID {
	return uuid.NewSHA1(n.namespace, []byte(lineUUID+":"+discriminator))
}

func (n *claudeNormalizer) Normalize(rec RawRecord) ([]event.Event, error) {
	if !utf8.Valid(rec.Data) {
		n.stats.fail(CategoryEncoding)
		return nil, nil
	}
	if !gjson.ValidBytes(rec.Data) {
		n.stats.fail(CategoryMalformedJSON)
		return nil, nil
	}
	n.stats.Records++

	root := gjson.ParseBytes(rec.Data)
	lineType := root.Get("type").String()
	switch lineType {
	case "user", "assistant":
	case "system":
		return n.normalizeSystem(root), nil
	case "summary", "queue-operation", "file-history-snapshot":
		n.stats.SkippedRecords++
		return nil, nil
	default:
		n.stats.SkippedRecords++
		return nil, nil
	}

	ts, ok := parseLineTimestamp(root)
	if !ok {
		n.stats.fail(CategoryMissingField)
		return nil, nil
	}
	lineUUID := root.Get("uuid").String()
	if lineUUID == "" {
		n.stats.fail(CategoryMissingField)
		return nil, nil
	}

	stream := event.MainStream()
	if root.Get("isSidechain").Bool() {
		agentID := root.Get("agentId").String()
		if agentID == "" {
			agentID = root.Get("sessionId").String()
		}
		stream = event.SidechainStream(agentID)
	}

	var parentID *uuid.UUID
	if parentUUID := root.Get("parentUuid").String(); parentUUID != "" {
		if id, ok := n.lineEvents[parentUUID]; ok {
			parentID = &id
		}
	}

	base := event.Event{
		SessionID: n.sessionID,
		ParentID:  parentID,
		Timestamp: ts,
		Stream:    stream,
	}

	var events []event.Event
	emit := func(discriminator string, payload event.Payload) {
		e := base
		e.ID = n.eventID(lineUUID, discriminator)
		e.Payload = payload
		events = append(events, e)
	}

	message := root.Get("message")
	content := message.Get("content")

	if lineType == "user" {
		var texts []string
		if content.Type == gjson.String {
			texts = append(texts, content.String())
		} else {
			content.ForEach(func(_, block gjson.Result) bool {
				switch block.Get("type").String() {
				case "text":
					texts = append(texts, block.Get("text").String())
				case "tool_result":
					callID := block.Get("tool_use_id").String()
					delete(n.pendingCalls, callID)
					emit("result:"+callID, event.ToolResult{
						Output:  toolResultText(block),
						IsError: block.Get("is_error").Bool(),
						CallID:  callID,
					})
				}
				return true
			})
		}
		// Tool-result-only user lines carry tool feedback, not a new turn.
		if joined := strings.TrimSpace(strings.Join(texts, "\n")); joined != "" {
			emit("user", event.User{Text: joined})
		}
	} else {
		blockIndex := 0
		content.ForEach(func(_, block gjson.Result) bool {
			discriminator := fmt.Sprintf("block:%d", blockIndex)
			blockIndex++
			switch block.Get("type").String() {
			case "text":
				emit(discriminator, event.Message{Text: block.Get("text").String()})
			case "thinking":
				emit(discriminator, event.Reasoning{Text: block.Get("thinking").String()})
			case "tool_use":
				callID := block.Get("id").String()
				name := block.Get("name").String()
				origin, kind := Classify(name, claudeTools)
				n.pendingCalls[callID] = true
				emit("call:"+callID, event.ToolCall{
					Name:      name,
					Arguments: rawJSON(block.Get("input")),
					Origin:    origin,
					Kind:      kind,
					CallID:    callID,
					Summary:   claudeToolSummary(name, block.Get("input")),
				})
			}
			return true
		})
		if usage := message.Get("usage"); usage.Exists() {
			input := usage.Get("input_tokens").Uint()
			output := usage.Get("output_tokens").Uint()
			cacheCreation := usage.Get("cache_creation_input_tokens").Uint()
			cacheRead := usage.Get("cache_read_input_tokens").Uint()
			e := base
			e.ID = n.eventID(lineUUID, "usage")
			e.Payload = event.TokenUsage{
				Input:         input,
				Output:        output,
				Total:         input + output + cacheCreation + cacheRead,
				CacheCreation: cacheCreation,
				CacheRead:     cacheRead,
			}
			if model := message.Get("model").String(); model != "" {
				e.Metadata = map[string]any{"model": model}
			}
			events = append(events, e)
		}
	}

	if len(events) > 0 {
		n.lineEvents[lineUUID] = events[0].ID
	}
	return events, nil
}

func (n *claudeNormalizer) normalizeSystem(root gjson.Result) []event.Event {
	ts, ok := parseLineTimestamp(root)
	if !ok {
		n.stats.fail(CategoryMissingField)
		return nil
	}
	lineUUID := root.Get("uuid").String()
	text := root.Get("content").String()
	if text == "" {
		n.stats.SkippedRecords++
		return nil
	}
	e := event.Event{
		ID:        n.eventID(lineUUID, "system"),
		SessionID: n.sessionID,
		Timestamp: ts,
		Stream:    event.MainStream(),
		Payload:   event.Notification{Text: text, Level: root.Get("level").String()},
	}
	return []event.Event{e}
}

func (n *claudeNormalizer) Finish() ([]event.Event, NormalizeStats) {
	n.stats.MissingPairs = len(n.pendingCalls)
	return nil, n.stats
}

// claudeToolSummary digests common tool arguments for display.
func claudeToolSummary(name string, input gjson.Result) string {
	switch name {
	case "Bash":
		return input.Get("command").String()
	case "Read", "Edit", "Write", "NotebookEdit":
		return input.Get("file_path").String()
	case "Glob", "Grep":
		return input.Get("pattern").String()
	case "WebFetch", "WebSearch":
		if url := input.Get("url"); url.Exists() {
			return url.String()
		}
		return input.Get("query").String()
	case "Task":
		return input.Get("description").String()
	}
	return ""
}

func toolResultText(block gjson.Result) string {
	content := block.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	content.ForEach(func(_, sub gjson.Result) bool {
		if sub.Get("type").String() == "text" {
			parts = append(parts, sub.Get("text").String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func parseLineTimestamp(root gjson.Result) (time.Time, bool) {
	raw := root.Get("timestamp").String()
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func rawJSON(r gjson.Result) []byte {
	if !r.Exists() {
		return nil
	}
	return []byte(r.Raw)
}

func readFirstLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, initialScanBufSize), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			out := make([]byte, len(line))
			copy(out, line)
			return out, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("empty file: %s", path)
}

func parseJSONLines(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var records []RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, initialScanBufSize), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		records = append(records, RawRecord{Line: lineNo, Data: data})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}
