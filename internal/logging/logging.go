// Package logging provides structured diagnostics for the scanner and the
// watcher. Output is JSON lines on stderr so stdout stays
// machine-readable for listings and dumps; verbosity is driven by the
// CLI's repeatable -v flag.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log severity. Lower values are chattier.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch {
	case l <= LevelDebug:
		return "debug"
	case l == LevelInfo:
		return "info"
	case l == LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// defaultMin is the process-wide minimum level new loggers start at. The
// CLI's -v counter lowers it before any component logger exists.
var defaultMin atomic.Int32

func init() {
	defaultMin.Store(int32(LevelInfo))
}

// SetVerbosity maps the CLI's repeated -v count onto the default minimum
// level: 0 keeps info, anything higher enables debug.
func SetVerbosity(count int) {
	if count > 0 {
		defaultMin.Store(int32(LevelDebug))
	} else {
		defaultMin.Store(int32(LevelInfo))
	}
}

// entry is the wire form of one diagnostic line.
type entry struct {
	Time      string                 `json:"ts"`
	Level     string                 `json:"level"`
	Msg       string                 `json:"msg"`
	Component string                 `json:"component,omitempty"`
	Session   string                 `json:"session,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger emits structured diagnostics for one component, optionally
// correlated to a session id.
type Logger struct {
	mu        sync.Mutex
	w         io.Writer
	min       Level
	component string
	session   string
}

// New creates a Logger at the process default verbosity, writing to
// stderr.
func New() *Logger {
	return &Logger{
		w:   os.Stderr,
		min: Level(defaultMin.Load()),
	}
}

// WithComponent returns a logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		w:         l.w,
		min:       l.min,
		component: component,
		session:   l.session,
	}
}

// WithSession returns a logger whose lines correlate to one session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		w:         l.w,
		min:       l.min,
		component: l.component,
		session:   sessionID,
	}
}

// SetMinLevel overrides the minimum level for this logger.
func (l *Logger) SetMinLevel(min Level) {
	l.min = min
}

// SetOutput redirects output (default: stderr). Tests capture lines this
// way.
func (l *Logger) SetOutput(w io.Writer) {
	l.w = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if level < l.min {
		return
	}

	e := entry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Msg:       msg,
		Component: l.component,
		Session:   l.session,
	}
	if len(fields) > 0 && fields[0] != nil {
		e.Fields = fields[0]
	}

	data, err := json.Marshal(e)
	if err != nil {
		data = []byte(msg)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(append(data, '\n'))
}

// ParseFailure logs a suppressed record-level parse failure.
func (l *Logger) ParseFailure(path string, line int, category string) {
	l.Debug("parse_failure", map[string]interface{}{
		"path":     path,
		"line":     line,
		"category": category,
	})
}

// FileScanned logs one file's scan outcome.
func (l *Logger) FileScanned(path string, skipped bool) {
	l.Debug("file_scanned", map[string]interface{}{
		"path":    path,
		"skipped": skipped,
	})
}
