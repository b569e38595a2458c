package project

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestHashFromRoot_DeterministicLowerHex(t *testing.T) {
	first := HashFromRoot("/home/user/work/repo")
	second := HashFromRoot("/home/user/work/repo")
	if first != second {
		t.Error("same input must produce the same hash")
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
	if !regexp.MustCompile("^[0-9a-f]{64}$").MatchString(first) {
		t.Errorf("expected lower hex, got %s", first)
	}
	if HashFromRoot("/home/user/work/other") == first {
		t.Error("different roots must hash differently")
	}
}

func TestDiscoverRoot_OverrideCanonicalized(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "..", "a")
	if err := os.MkdirAll(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	root, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover error: %v", err)
	}
	if filepath.Base(root) != "a" {
		t.Errorf("expected canonicalized path ending in a, got %s", root)
	}
}

func TestDiscoverRoot_WalksUpToMarker(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	inner := filepath.Join(dir, "src", "pkg")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatal(err)
	}

	got := discoverFrom(inner)
	if got != dir {
		t.Errorf("expected marker directory %s, got %s", dir, got)
	}
}

func TestDiscoverRoot_FallsBackToStart(t *testing.T) {
	dir := t.TempDir()
	inner := filepath.Join(dir, "plain")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	got := discoverFrom(inner)
	// No marker anywhere up the temp tree is not guaranteed, but the
	// fallback must at least return a prefix of the walk.
	if got != inner && !isAncestor(got, inner) {
		t.Errorf("expected %s or an ancestor, got %s", inner, got)
	}
}

func isAncestor(ancestor, path string) bool {
	rel, err := filepath.Rel(ancestor, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel)
}
