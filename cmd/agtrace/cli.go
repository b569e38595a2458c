// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Init     InitCmd     `cmd:"" help:"Create the data directory and default config"`
	Index    IndexCmd    `cmd:"" help:"Scan provider logs into the index"`
	Sessions SessionsCmd `cmd:"" help:"List indexed sessions"`
	Show     ShowCmd     `cmd:"" help:"Show one assembled session"`
	Projects ProjectsCmd `cmd:"" help:"List known projects"`
	Watch    WatchCmd    `cmd:"" help:"Tail a live session or provider"`
	Doctor   DoctorCmd   `cmd:"" help:"Diagnose provider log corpora"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`

	Config  string `help:"Config file path" type:"path"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v enables debug diagnostics)"`
}

// InitCmd writes the default configuration.
type InitCmd struct{}

// IndexCmd runs an incremental scan.
type IndexCmd struct {
	Force       bool   `help:"Reindex files even when unchanged"`
	Project     string `help:"Project root to scope the scan (default: discovered)"`
	AllProjects bool   `help:"Scan without project scoping"`
}

// SessionsCmd lists sessions newest-first.
type SessionsCmd struct {
	Project     string `help:"Project root to scope the listing"`
	AllProjects bool   `help:"List across all projects"`
	Limit       int    `default:"20" help:"Page size"`
	Cursor      string `help:"Continue from a previous page"`
	JSON        bool   `help:"Emit JSON"`
}

// ShowCmd assembles and prints one session.
type ShowCmd struct {
	Session string `arg:"" help:"Session id or unambiguous prefix (>= 8 chars)"`
	JSON    bool   `help:"Emit JSON"`
	Raw     bool   `help:"Dump raw file contents instead"`
}

// ProjectsCmd lists known projects.
type ProjectsCmd struct{}

// WatchCmd tails a session or a provider's newest session.
type WatchCmd struct {
	Provider string `arg:"" help:"Provider name (claude, codex, gemini)"`
	Session  string `help:"Session id to follow; default: most recently written file"`
	Model    string `help:"Model name for context-window limits"`
}

// DoctorCmd parses every file of each enabled provider and categorizes
// failures.
type DoctorCmd struct {
	Provider string `help:"Restrict to one provider"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
