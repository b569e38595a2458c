package provider

import (
	"encoding/json"
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

// GeminiAdapter reads Gemini CLI session files: a single JSON document per
// session, with nested thoughts and toolCalls arrays on each assistant
// message, each message carrying its own token accounting.
type GeminiAdapter struct{}

// NewGeminiAdapter returns the Gemini session adapter.
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

// Name implements Adapter.
func (a *GeminiAdapter) Name() string { return "gemini" }

// DocumentOriented reports that Gemini sessions are single JSON documents
// rather than append-only JSONL, so tailing re-reads the whole file.
func (a *GeminiAdapter) DocumentOriented() bool { return true }

// Probe accepts session-*.json documents carrying the sessionId/messages
// shape.
func (a *GeminiAdapter) Probe(path string) bool {
	base := filepath.Base(path)
	if filepath.Ext(base) != ".json" {
		return false
	}
	if !strings.HasPrefix(base, "session-") &&
		!strings.Contains(filepath.ToSlash(path), ".gemini/") {
		return false
	}
	head, err := readHead(path, 4096)
	if err != nil {
		return false
	}
	return strings.Contains(string(head), `"sessionId"`) &&
		strings.Contains(string(head), `"messages"`)
}

// Discover walks the log root for session documents.
func (a *GeminiAdapter) Discover(logRoot string) ([]DiscoveredSession, error) {
	var sessions []DiscoveredSession
	err := filepath.WalkDir(logRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !a.Probe(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		root := gjson.ParseBytes(data)
		id := root.Get("sessionId").String()
		if id == "" {
			return nil
		}
		session := DiscoveredSession{SessionID: id, PrimaryFile: path}
		if raw := root.Get("startTime").String(); raw != "" {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				utc := ts.UTC()
				session.StartedAt = &utc
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

// Parse returns the whole document as one raw record.
func (a *GeminiAdapter) Parse(path string) ([]RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return []RawRecord{{Line: 0, Data: data}}, nil
}

// Normalizer implements Adapter.
func (a *GeminiAdapter) Normalizer(path string) Normalizer {
	return &geminiNormalizer{path: path}
}

type geminiNormalizer struct {
	path  string
	stats NormalizeStats
}

func (n *geminiNormalizer) Normalize(rec RawRecord) ([]event.Event, error) {
	if !utf8.Valid(rec.Data) {
		return nil, &FileError{Path: n.path, Msg: "document is not valid UTF-8"}
	}
	if !gjson.ValidBytes(rec.Data) {
		return nil, &FileError{Path: n.path, Msg: "document is not valid JSON"}
	}
	root := gjson.ParseBytes(rec.Data)
	rawID := root.Get("sessionId").String()
	if rawID == "" {
		return nil, &FileError{Path: n.path, Msg: "document has no sessionId"}
	}
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		sessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawID))
	}
	namespace := uuid.NewSHA1(uuid.NameSpaceOID, []byte(rawID))

	var events []event.Event
	pending := 0
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		n.stats.Records++
		msgID := msg.Get("id").String()
		ts, ok := parseGeminiTimestamp(msg)
		if !ok || msgID == "" {
			n.stats.fail(CategoryMissingField)
			return true
		}
		base := event.Event{
			SessionID: sessionID,
			Timestamp: ts,
			Stream:    event.MainStream(),
		}
		emit := func(discriminator string, payload event.Payload) {
			e := base
			e.ID = uuid.NewSHA1(namespace, []byte(msgID+":"+discriminator))
			e.Payload = payload
			events = append(events, e)
		}

		switch msg.Get("type").String() {
		case "user":
			emit("user", event.User{Text: msg.Get("content").String()})
		case "gemini":
			index := 0
			msg.Get("thoughts").ForEach(func(_, thought gjson.Result) bool {
				subject := thought.Get("subject").String()
				description := thought.Get("description").String()
				text := description
				if subject != "" {
					text = subject + ": " + description
				}
				emit(fmt.Sprintf("thought:%d", index), event.Reasoning{Text: text})
				index++
				return true
			})
			if content := msg.Get("content").String(); content != "" {
				emit("message", event.Message{Text: content})
			}
			msg.Get("toolCalls").ForEach(func(_, call gjson.Result) bool {
				callID := call.Get("id").String()
				name := call.Get("name").String()
				origin, kind := Classify(name, geminiTools)
				emit("call:"+callID, event.ToolCall{
					Name:      name,
					Arguments: rawJSON(call.Get("args")),
					Origin:    origin,
					Kind:      kind,
					CallID:    callID,
				})
				if result := call.Get("result"); result.Exists() && result.IsArray() && len(result.Array()) > 0 {
					emit("result:"+callID, event.ToolResult{
						Output:  geminiResultText(call),
						IsError: call.Get("status").String() == "error",
						CallID:  callID,
					})
				} else {
					pending++
				}
				return true
			})
			if usage := msg.Get("tokens"); usage.Exists() {
				input := usage.Get("input").Uint()
				cached := usage.Get("cached").Uint()
				fresh := input
				if cached <= input {
					fresh = input - cached
				}
				tu := event.TokenUsage{
					Input:     fresh,
					Output:    usage.Get("output").Uint(),
					Total:     usage.Get("total").Uint(),
					CacheRead: cached,
				}
				e := base
				e.ID = uuid.NewSHA1(namespace, []byte(msgID+":usage"))
				e.Payload = tu
				if model := msg.Get("model").String(); model != "" {
					e.Metadata = map[string]any{"model": model}
				}
				events = append(events, e)
			}
		case "info":
			emit("info", event.Notification{Text: msg.Get("content").String(), Level: "info"})
		default:
			n.stats.SkippedRecords++
		}
		return true
	})
	n.stats.MissingPairs += pending
	return events, nil
}

func (n *geminiNormalizer) Finish() ([]event.Event, NormalizeStats) {
	return nil, n.stats
}

func parseGeminiTimestamp(msg gjson.Result) (time.Time, bool) {
	raw := msg.Get("timestamp").String()
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func geminiResultText(call gjson.Result) string {
	if display := call.Get("resultDisplay").String(); display != "" {
		return display
	}
	var parts []string
	call.Get("result").ForEach(func(_, item gjson.Result) bool {
		response := item.Get("functionResponse.response")
		if !response.Exists() {
			return true
		}
		if output := response.Get("output"); output.Exists() {
			parts = append(parts, output.String())
			return true
		}
		compact, err := json.Marshal(response.Value())
		if err == nil {
			parts = append(parts, string(compact))
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func readHead(path string, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, size)
	read, err := f.Read(buf)
	if read == 0 && err != nil {
		return nil, err
	}
	return buf[:read], nil
}
