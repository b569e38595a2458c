package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata describes a known provider family.
type Metadata struct {
	Name        string
	Description string
	// DefaultLogRoot is the conventional log location, with ~ for home.
	DefaultLogRoot string
}

var registry = []Metadata{
	{Name: "claude", Description: "Claude Code", DefaultLogRoot: "~/.claude/projects"},
	{Name: "codex", Description: "Codex CLI", DefaultLogRoot: "~/.codex/sessions"},
	{Name: "gemini", Description: "Gemini CLI", DefaultLogRoot: "~/.gemini/tmp"},
}

// All returns metadata for every known provider.
func All() []Metadata {
	out := make([]Metadata, len(registry))
	copy(out, registry)
	return out
}

// Names returns the known provider names in registry order.
func Names() []string {
	names := make([]string, len(registry))
	for i, m := range registry {
		names[i] = m.Name
	}
	return names
}

// Get returns metadata for a provider name.
func Get(name string) (Metadata, bool) {
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return Metadata{}, false
}

// Create returns the adapter for a provider name.
func Create(name string) (Adapter, error) {
	switch name {
	case "claude", "claude_code":
		return NewClaudeAdapter(), nil
	case "codex":
		return NewCodexAdapter(), nil
	case "gemini":
		return NewGeminiAdapter(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// CreateAll returns adapters for every known provider.
func CreateAll() []Adapter {
	return []Adapter{NewClaudeAdapter(), NewCodexAdapter(), NewGeminiAdapter()}
}

// DetectFromPath resolves an adapter from a file path. The path must match
// a known provider prefix pattern; otherwise ErrUnknownProvider.
func DetectFromPath(path string) (Adapter, error) {
	normalized := filepath.ToSlash(path)
	switch {
	case strings.Contains(normalized, ".claude/"):
		return NewClaudeAdapter(), nil
	case strings.Contains(normalized, ".codex/"):
		return NewCodexAdapter(), nil
	case strings.Contains(normalized, ".gemini/"):
		return NewGeminiAdapter(), nil
	}
	return nil, fmt.Errorf("%w: cannot detect provider from path %q", ErrUnknownProvider, path)
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// DefaultLogRoots returns (name, expanded root) pairs for every provider
// whose default root can be resolved.
func DefaultLogRoots() [][2]string {
	var roots [][2]string
	for _, m := range registry {
		if expanded, err := ExpandHome(m.DefaultLogRoot); err == nil {
			roots = append(roots, [2]string{m.Name, expanded})
		}
	}
	return roots
}
