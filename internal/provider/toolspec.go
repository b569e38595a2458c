package provider

import (
	"strings"

	"github.com/lanegrid/agtrace/internal/event"
)

// McpPrefix marks tools invoked via the MCP protocol.
const McpPrefix = "mcp__"

// ToolSpec maps a provider tool name to its origin and semantic kind.
type ToolSpec struct {
	Origin event.ToolOrigin
	Kind   event.ToolKind
}

// Classify resolves a tool name against a static adapter table. Unknown
// names default to (system, other) unless MCP-prefixed, which makes them
// (mcp, other).
func Classify(name string, table map[string]ToolSpec) (event.ToolOrigin, event.ToolKind) {
	if spec, ok := table[name]; ok {
		return spec.Origin, spec.Kind
	}
	if strings.HasPrefix(name, McpPrefix) {
		return event.OriginMcp, event.KindOther
	}
	return event.OriginSystem, event.KindOther
}

// claudeTools classifies the Claude Code built-in tool set.
var claudeTools = map[string]ToolSpec{
	"Read":         {event.OriginSystem, event.KindRead},
	"NotebookRead": {event.OriginSystem, event.KindRead},
	"Edit":         {event.OriginSystem, event.KindWrite},
	"MultiEdit":    {event.OriginSystem, event.KindWrite},
	"Write":        {event.OriginSystem, event.KindWrite},
	"NotebookEdit": {event.OriginSystem, event.KindWrite},
	"Bash":         {event.OriginSystem, event.KindExecute},
	"BashOutput":   {event.OriginSystem, event.KindExecute},
	"KillShell":    {event.OriginSystem, event.KindExecute},
	"Glob":         {event.OriginSystem, event.KindSearch},
	"Grep":         {event.OriginSystem, event.KindSearch},
	"WebSearch":    {event.OriginSystem, event.KindSearch},
	"WebFetch":     {event.OriginSystem, event.KindRead},
	"TodoWrite":    {event.OriginSystem, event.KindPlan},
	"Task":         {event.OriginSystem, event.KindPlan},
	"ExitPlanMode": {event.OriginSystem, event.KindPlan},
	"AskUserQuestion": {
		event.OriginSystem, event.KindAsk,
	},
}

// codexTools classifies the Codex CLI built-in tool set. read_mcp_resource
// is provider-native even though it touches MCP resources.
var codexTools = map[string]ToolSpec{
	"apply_patch":       {event.OriginSystem, event.KindWrite},
	"read_mcp_resource": {event.OriginSystem, event.KindRead},
	"shell":             {event.OriginSystem, event.KindExecute},
	"shell_command":     {event.OriginSystem, event.KindExecute},
	"update_plan":       {event.OriginSystem, event.KindPlan},
	"view_image":        {event.OriginSystem, event.KindRead},
}

// geminiTools classifies the Gemini CLI built-in tool set.
var geminiTools = map[string]ToolSpec{
	"read_file":           {event.OriginSystem, event.KindRead},
	"read_many_files":     {event.OriginSystem, event.KindRead},
	"write_file":          {event.OriginSystem, event.KindWrite},
	"replace":             {event.OriginSystem, event.KindWrite},
	"run_shell_command":   {event.OriginSystem, event.KindExecute},
	"glob":                {event.OriginSystem, event.KindSearch},
	"search_file_content": {event.OriginSystem, event.KindSearch},
	"google_web_search":   {event.OriginSystem, event.KindSearch},
	"web_fetch":           {event.OriginSystem, event.KindRead},
	"save_memory":         {event.OriginSystem, event.KindWrite},
}
