// Package project discovers the project root for the current invocation and
// derives the stable project hash used to scope sessions in the index.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Markers that identify a directory as a project root, checked in order.
var rootMarkers = []string{
	".git",
	".hg",
	".svn",
	"go.mod",
	"Cargo.toml",
	"package.json",
	"pyproject.toml",
}

// DiscoverRoot resolves the project root. An explicit override is
// canonicalized and used as-is. Otherwise the walk starts at the working
// directory and moves upward until a directory carries a recognizable
// marker; with no marker anywhere, the working directory itself is the
// root.
func DiscoverRoot(override string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("failed to canonicalize project root %q: %w", override, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return discoverFrom(cwd), nil
}

func discoverFrom(start string) string {
	dir := start
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// HashFromRoot computes the project hash: lower-hex SHA-256 of the UTF-8
// bytes of the canonical absolute root path. Same input, same hash, on any
// machine.
func HashFromRoot(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])
}
