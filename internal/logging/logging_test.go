package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(l *Logger) *bytes.Buffer {
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return buf
}

func TestLogger_EmitsJSONLines(t *testing.T) {
	l := New().WithComponent("scanner").WithSession("fb3cff44")
	buf := capture(l)

	l.Info("session_registered", map[string]interface{}{"provider": "claude"})

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not a JSON line: %v", err)
	}
	if e.Msg != "session_registered" || e.Level != "info" {
		t.Errorf("entry = %+v", e)
	}
	if e.Component != "scanner" || e.Session != "fb3cff44" {
		t.Errorf("correlation fields lost: %+v", e)
	}
	if e.Fields["provider"] != "claude" {
		t.Errorf("fields lost: %+v", e.Fields)
	}
}

func TestLogger_DebugSuppressedByDefault(t *testing.T) {
	SetVerbosity(0)
	l := New()
	buf := capture(l)

	l.Debug("file_scanned")
	if buf.Len() != 0 {
		t.Error("debug lines must be suppressed at default verbosity")
	}

	l.Warn("slow poll")
	if buf.Len() == 0 {
		t.Error("warn lines must pass at default verbosity")
	}
}

func TestLogger_VerbosityEnablesDebug(t *testing.T) {
	SetVerbosity(1)
	defer SetVerbosity(0)

	l := New().WithComponent("watcher")
	buf := capture(l)
	l.ParseFailure("/logs/a.jsonl", 3, "malformed_json")

	if !strings.Contains(buf.String(), "parse_failure") {
		t.Error("-v must enable debug diagnostics")
	}
}

func TestLogger_SetMinLevel(t *testing.T) {
	l := New()
	buf := capture(l)
	l.SetMinLevel(LevelError)

	l.Warn("ignored")
	if buf.Len() != 0 {
		t.Error("warn must be suppressed below the minimum level")
	}
	l.Error("kept")
	if buf.Len() == 0 {
		t.Error("error must pass")
	}
}
