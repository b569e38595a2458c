package provider

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lanegrid/agtrace/internal/event"
	"github.com/lanegrid/agtrace/internal/link"
)

// CodexAdapter reads Codex CLI rollout logs: one JSON object per line with
// a session_meta header on the first line. entered_review_mode events in a
// parent file mark subagent spawns.
type CodexAdapter struct {
	// LinkWindow bounds spawn-to-header correlation; zero means
	// link.DefaultWindow.
	LinkWindow time.Duration
}

// NewCodexAdapter returns the Codex rollout adapter.
func NewCodexAdapter() *CodexAdapter {
	return &CodexAdapter{}
}

// Name implements Adapter.
func (a *CodexAdapter) Name() string { return "codex" }

// Probe accepts rollout-*.jsonl files.
func (a *CodexAdapter) Probe(path string) bool {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "rollout-") || filepath.Ext(base) != ".jsonl" {
		return false
	}
	return true
}

// codexHeader is the session-identifying first line of a rollout file.
type codexHeader struct {
	SessionID    string
	SubagentType string
	Timestamp    time.Time
	Cwd          string
}

func readCodexHeader(path string) (*codexHeader, error) {
	line, err := readFirstLine(path)
	if err != nil {
		return nil, &FileError{Path: path, Msg: "missing session_meta header: " + err.Error()}
	}
	root := gjson.ParseBytes(line)
	if root.Get("type").String() != "session_meta" {
		return nil, &FileError{Path: path, Msg: "first record is not session_meta"}
	}
	payload := root.Get("payload")
	id := payload.Get("id").String()
	if id == "" {
		return nil, &FileError{Path: path, Msg: "session_meta has no id"}
	}
	header := &codexHeader{
		SessionID:    id,
		SubagentType: payload.Get("subagent.type").String(),
		Cwd:          payload.Get("cwd").String(),
	}
	for _, field := range []string{"timestamp", "payload.timestamp"} {
		if raw := root.Get(field).String(); raw != "" {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				header.Timestamp = ts.UTC()
				break
			}
		}
	}
	return header, nil
}

// SpawnEvents extracts entered_review_mode records from a parent rollout
// file, tagging each with the turn index open at that point.
func (a *CodexAdapter) SpawnEvents(path string) ([]link.SpawnEvent, error) {
	records, err := parseJSONLines(path)
	if err != nil {
		return nil, err
	}
	var spawns []link.SpawnEvent
	turnIndex := -1
	for _, rec := range records {
		if !gjson.ValidBytes(rec.Data) {
			continue
		}
		root := gjson.ParseBytes(rec.Data)
		switch root.Get("type").String() {
		case "response_item":
			payload := root.Get("payload")
			if payload.Get("type").String() == "message" &&
				payload.Get("role").String() == "user" {
				turnIndex++
			}
		case "event_msg":
			if root.Get("payload.type").String() != "entered_review_mode" {
				continue
			}
			raw := root.Get("timestamp").String()
			ts, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				continue
			}
			subagentType := root.Get("payload.review_type").String()
			if subagentType == "" {
				subagentType = "review"
			}
			index := turnIndex
			if index < 0 {
				index = 0
			}
			spawns = append(spawns, link.SpawnEvent{
				Timestamp:    ts.UTC(),
				SubagentType: subagentType,
				TurnIndex:    index,
			})
		}
	}
	return spawns, nil
}

// Discover walks the log root, reads every rollout header, and links
// subagent files to the parent spawn whose timestamp is closest within the
// window.
func (a *CodexAdapter) Discover(logRoot string) ([]DiscoveredSession, error) {
	var paths []string
	err := filepath.WalkDir(logRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && a.Probe(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", logRoot, err)
	}
	sort.Strings(paths)

	type candidate struct {
		session DiscoveredSession
		header  *codexHeader
	}
	var candidates []candidate
	type parent struct {
		sessionID string
		spawns    []link.SpawnEvent
	}
	var parents []parent

	for _, path := range paths {
		header, err := readCodexHeader(path)
		if err != nil {
			continue // unparseable file; the scan driver records it invalid
		}
		session := DiscoveredSession{
			SessionID:   header.SessionID,
			PrimaryFile: path,
			ProjectPath: header.Cwd,
		}
		if !header.Timestamp.IsZero() {
			ts := header.Timestamp
			session.StartedAt = &ts
		}
		if header.SubagentType == "" {
			spawns, err := a.SpawnEvents(path)
			if err == nil && len(spawns) > 0 {
				parents = append(parents, parent{sessionID: header.SessionID, spawns: spawns})
			}
		}
		candidates = append(candidates, candidate{session: session, header: header})
	}

	// Link subagent files to their parents first, so the parent entries
	// can list the linked files as auxiliaries.
	auxByParent := make(map[string][]string)
	for i := range candidates {
		c := &candidates[i]
		if c.header.SubagentType == "" {
			continue
		}
		header := link.SubagentHeader{
			SessionID:    c.header.SessionID,
			SubagentType: c.header.SubagentType,
			Timestamp:    c.header.Timestamp,
		}
		var bestParent string
		var bestResult link.Result
		found := false
		for _, p := range parents {
			if result, ok := link.Match(p.spawns, header, a.LinkWindow); ok {
				if !found || result.Delta < bestResult.Delta {
					bestParent, bestResult, found = p.sessionID, result, true
				}
			}
		}
		if found {
			c.session.ParentSessionID = bestParent
			c.session.SpawnContext = &SpawnContext{
				TurnIndex: bestResult.Spawn.TurnIndex,
				Timestamp: bestResult.Spawn.Timestamp,
			}
			auxByParent[bestParent] = append(auxByParent[bestParent], c.session.PrimaryFile)
		}
	}

	sessions := make([]DiscoveredSession, 0, len(candidates))
	for _, c := range candidates {
		c.session.AuxiliaryFiles = auxByParent[c.session.SessionID]
		sessions = append(sessions, c.session)
	}
	return sessions, nil
}

// Parse implements Adapter.
func (a *CodexAdapter) Parse(path string) ([]RawRecord, error) {
	return parseJSONLines(path)
}

// Normalizer implements Adapter.
func (a *CodexAdapter) Normalizer(path string) Normalizer {
	return &codexNormalizer{path: path, pendingCalls: make(map[string]bool)}
}

type codexNormalizer struct {
	path         string
	sessionID    uuid.UUID
	namespace    uuid.UUID
	subagent     string
	headerSeen   bool
	stats        NormalizeStats
	pendingCalls map[string]bool
	eventIndex   int
}

func (n *codexNormalizer) eventID(discriminator string) uuid.UUID {
	return uuid.NewSHA1(n.namespace, []byte(discriminator))
}

func (n *codexNormalizer) stream() event.StreamID {
	if n.subagent != "" {
		return event.SubagentStream(n.subagent)
	}
	return event.MainStream()
}

func (n *codexNormalizer) Normalize(rec RawRecord) ([]event.Event, error) {
	if !utf8.Valid(rec.Data) {
		n.stats.fail(CategoryEncoding)
		return nil, nil
	}
	if !gjson.ValidBytes(rec.Data) {
		if !n.headerSeen {
			return nil, &FileError{Path: n.path, Msg: "malformed session_meta header"}
		}
		n.stats.fail(CategoryMalformedJSON)
		return nil, nil
	}
	root := gjson.ParseBytes(rec.Data)

	if !n.headerSeen {
		if root.Get("type").String() != "session_meta" {
			return nil, &FileError{Path: n.path, Msg: "first record is not session_meta"}
		}
		id := root.Get("payload.id").String()
		if id == "" {
			return nil, &FileError{Path: n.path, Msg: "session_meta has no id"}
		}
		sessionID, err := uuid.Parse(id)
		if err != nil {
			return nil, &FileError{Path: n.path, Msg: "session_meta id is not a uuid: " + id}
		}
		n.sessionID = sessionID
		n.namespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID.String()))
		n.subagent = root.Get("payload.subagent.type").String()
		n.headerSeen = true
		n.stats.Records++
		return nil, nil
	}

	n.stats.Records++
	ts, ok := parseLineTimestamp(root)
	if !ok {
		n.stats.fail(CategoryMissingField)
		return nil, nil
	}

	base := event.Event{
		SessionID: n.sessionID,
		Timestamp: ts,
		Stream:    n.stream(),
	}
	n.eventIndex++
	discriminator := fmt.Sprintf("%d", n.eventIndex)

	switch root.Get("type").String() {
	case "response_item":
		return n.normalizeResponseItem(base, discriminator, root.Get("payload")), nil
	case "event_msg":
		return n.normalizeEventMsg(base, discriminator, root.Get("payload")), nil
	case "turn_context", "compacted":
		n.stats.SkippedRecords++
		return nil, nil
	default:
		n.stats.SkippedRecords++
		return nil, nil
	}
}

func (n *codexNormalizer) normalizeResponseItem(base event.Event, discriminator string, payload gjson.Result) []event.Event {
	switch payload.Get("type").String() {
	case "message":
		text := codexMessageText(payload)
		if text == "" {
			n.stats.SkippedRecords++
			return nil
		}
		base.ID = n.eventID("msg:" + discriminator)
		if payload.Get("role").String() == "user" {
			base.Payload = event.User{Text: text}
		} else {
			base.Payload = event.Message{Text: text}
		}
		return []event.Event{base}
	case "reasoning":
		var parts []string
		payload.Get("summary").ForEach(func(_, item gjson.Result) bool {
			if t := item.Get("text").String(); t != "" {
				parts = append(parts, t)
			}
			return true
		})
		if content := payload.Get("content"); content.Exists() {
			content.ForEach(func(_, item gjson.Result) bool {
				if t := item.Get("text").String(); t != "" {
					parts = append(parts, t)
				}
				return true
			})
		}
		if len(parts) == 0 {
			n.stats.SkippedRecords++
			return nil
		}
		base.ID = n.eventID("reasoning:" + discriminator)
		base.Payload = event.Reasoning{Text: strings.Join(parts, "\n")}
		return []event.Event{base}
	case "function_call":
		callID := payload.Get("call_id").String()
		name := payload.Get("name").String()
		origin, kind := Classify(name, codexTools)
		n.pendingCalls[callID] = true
		base.ID = n.eventID("call:" + callID)
		base.Payload = event.ToolCall{
			Name:      name,
			Arguments: rawJSON(payload.Get("arguments")),
			Origin:    origin,
			Kind:      kind,
			CallID:    callID,
			Summary:   codexToolSummary(name, payload.Get("arguments")),
		}
		return []event.Event{base}
	case "function_call_output":
		callID := payload.Get("call_id").String()
		delete(n.pendingCalls, callID)
		output := payload.Get("output")
		text := output.String()
		isError := false
		if output.IsObject() {
			text = output.Get("content").String()
			if success := output.Get("success"); success.Exists() {
				isError = !success.Bool()
			}
		}
		base.ID = n.eventID("result:" + callID)
		base.Payload = event.ToolResult{Output: text, IsError: isError, CallID: callID}
		return []event.Event{base}
	default:
		n.stats.SkippedRecords++
		return nil
	}
}

func (n *codexNormalizer) normalizeEventMsg(base event.Event, discriminator string, payload gjson.Result) []event.Event {
	switch payload.Get("type").String() {
	case "token_count":
		info := payload.Get("info.total_token_usage")
		if !info.Exists() {
			info = payload.Get("info.last_token_usage")
		}
		if !info.Exists() {
			n.stats.SkippedRecords++
			return nil
		}
		input := info.Get("input_tokens").Uint()
		output := info.Get("output_tokens").Uint()
		cached := info.Get("cached_input_tokens").Uint()
		total := info.Get("total_tokens").Uint()
		if total == 0 {
			total = input + output
		}
		fresh := input
		if cached <= input {
			fresh = input - cached
		}
		base.ID = n.eventID("usage:" + discriminator)
		base.Payload = event.TokenUsage{
			Input:     fresh,
			Output:    output,
			Total:     total,
			CacheRead: cached,
		}
		if model := payload.Get("info.model_context_window"); model.Exists() {
			base.Metadata = map[string]any{"context_window": model.Uint()}
		}
		return []event.Event{base}
	case "entered_review_mode":
		base.ID = n.eventID("notify:" + discriminator)
		base.Payload = event.Notification{Text: "entered review mode", Level: "info"}
		return []event.Event{base}
	case "agent_message", "error", "warning":
		text := payload.Get("message").String()
		if text == "" {
			n.stats.SkippedRecords++
			return nil
		}
		base.ID = n.eventID("notify:" + discriminator)
		base.Payload = event.Notification{Text: text, Level: payload.Get("type").String()}
		return []event.Event{base}
	default:
		n.stats.SkippedRecords++
		return nil
	}
}

func (n *codexNormalizer) Finish() ([]event.Event, NormalizeStats) {
	n.stats.MissingPairs = len(n.pendingCalls)
	return nil, n.stats
}

func codexMessageText(payload gjson.Result) string {
	content := payload.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "input_text", "output_text", "text":
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// codexToolSummary digests tool arguments the way each tool encodes them:
// apply_patch hides the filename inside the raw patch, shell passes argv.
func codexToolSummary(name string, arguments gjson.Result) string {
	args := arguments
	if arguments.Type == gjson.String {
		args = gjson.Parse(arguments.String())
	}
	switch name {
	case "apply_patch":
		raw := args.Get("raw").String()
		if raw == "" {
			raw = args.Get("input").String()
		}
		if at := strings.Index(raw, "Update File: "); at >= 0 {
			rest := raw[at+len("Update File: "):]
			if end := strings.IndexByte(rest, '\n'); end >= 0 {
				rest = rest[:end]
			}
			return strings.TrimSpace(rest)
		}
	case "shell", "shell_command":
		cmd := args.Get("command")
		if cmd.IsArray() {
			var parts []string
			cmd.ForEach(func(_, item gjson.Result) bool {
				parts = append(parts, item.String())
				return true
			})
			return strings.Join(parts, " ")
		}
		return cmd.String()
	case "update_plan":
		return args.Get("explanation").String()
	}
	return ""
}
