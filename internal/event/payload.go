package event

import (
	"encoding/json"
	"fmt"
)

// ToolOrigin distinguishes provider-native tools from MCP protocol tools.
// The origin is determined by how the tool is invoked, not by what it
// operates on: a provider-native tool that happens to read MCP resources is
// still System.
type ToolOrigin string

const (
	OriginSystem ToolOrigin = "system"
	OriginMcp    ToolOrigin = "mcp"
)

// ToolKind classifies a tool by semantic purpose.
type ToolKind string

const (
	KindRead    ToolKind = "read"
	KindWrite   ToolKind = "write"
	KindExecute ToolKind = "execute"
	KindPlan    ToolKind = "plan"
	KindSearch  ToolKind = "search"
	KindAsk     ToolKind = "ask"
	KindOther   ToolKind = "other"
)

// Payload is the tagged sum of event content variants.
type Payload interface {
	payloadType() string
}

// User is a user input message. Each User event opens a new turn.
type User struct {
	Text string `json:"text"`
}

// Message is visible assistant output.
type Message struct {
	Text string `json:"text"`
}

// Reasoning is hidden assistant thinking.
type Reasoning struct {
	Text string `json:"text"`
}

// ToolCall is a tool invocation. CallID correlates the call with its
// result within a file; it is provider-scoped and unique per file.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Origin    ToolOrigin      `json:"origin"`
	Kind      ToolKind        `json:"kind"`
	CallID    string          `json:"call_id,omitempty"`
	// Summary is a short human-readable argument digest (e.g. the shell
	// command or the patched filename) when the provider exposes one.
	Summary string `json:"summary,omitempty"`
}

// ToolResult pairs with exactly zero or one preceding ToolCall.
type ToolResult struct {
	Output     string `json:"output"`
	IsError    bool   `json:"is_error"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	CallID     string `json:"call_id,omitempty"`
}

// TokenUsage is a point-in-time token accounting snapshot.
type TokenUsage struct {
	Input         uint64 `json:"input"`
	Output        uint64 `json:"output"`
	Total         uint64 `json:"total"`
	CacheCreation uint64 `json:"cache_creation,omitempty"`
	CacheRead     uint64 `json:"cache_read,omitempty"`
}

// Notification is an out-of-band provider message (warnings, mode changes).
type Notification struct {
	Text  string `json:"text"`
	Level string `json:"level,omitempty"`
}

func (User) payloadType() string         { return "user" }
func (Message) payloadType() string      { return "message" }
func (Reasoning) payloadType() string    { return "reasoning" }
func (ToolCall) payloadType() string     { return "tool_call" }
func (ToolResult) payloadType() string   { return "tool_result" }
func (TokenUsage) payloadType() string   { return "token_usage" }
func (Notification) payloadType() string { return "notification" }

type payloadWire struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func marshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadWire{Type: p.payloadType(), Data: data})
}

func unmarshalPayload(raw json.RawMessage) (Payload, error) {
	var w payloadWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	var p Payload
	switch w.Type {
	case "user":
		p = &User{}
	case "message":
		p = &Message{}
	case "reasoning":
		p = &Reasoning{}
	case "tool_call":
		p = &ToolCall{}
	case "tool_result":
		p = &ToolResult{}
	case "token_usage":
		p = &TokenUsage{}
	case "notification":
		p = &Notification{}
	default:
		return nil, fmt.Errorf("unknown payload type: %q", w.Type)
	}
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, p); err != nil {
			return nil, err
		}
	}
	switch v := p.(type) {
	case *User:
		return *v, nil
	case *Message:
		return *v, nil
	case *Reasoning:
		return *v, nil
	case *ToolCall:
		return *v, nil
	case *ToolResult:
		return *v, nil
	case *TokenUsage:
		return *v, nil
	case *Notification:
		return *v, nil
	}
	return nil, fmt.Errorf("unhandled payload type: %q", w.Type)
}
