package index

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func tsAt(minute int) *time.Time {
	t := time.Date(2026, 1, 4, 12, minute, 0, 0, time.UTC)
	return &t
}

func TestStore_UpsertSessionReplacesFields(t *testing.T) {
	store, _ := openTestStore(t)

	rec := SessionRecord{
		SessionID:   "fb3cff44-0000-4000-8000-000000000001",
		ProjectHash: "hash-a",
		Provider:    "claude",
		StartTS:     tsAt(0),
		Snippet:     "first",
		IsValid:     true,
	}
	if err := store.UpsertSession(rec); err != nil {
		t.Fatal(err)
	}

	rec.Snippet = "updated"
	rec.IsValid = false
	if err := store.UpsertSession(rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSession(rec.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Snippet != "updated" || got.IsValid {
		t.Errorf("upsert did not replace fields: %+v", got)
	}
}

func TestStore_InvalidSessionStillListable(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.UpsertSession(SessionRecord{
		SessionID: "fb3cff44-0000-4000-8000-00000000000a",
		Provider:  "codex",
		StartTS:   tsAt(1),
		IsValid:   false,
	}); err != nil {
		t.Fatal(err)
	}
	page, err := store.ListSessions("", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Sessions) != 1 || page.Sessions[0].IsValid {
		t.Error("invalid sessions must remain listable for diagnostics")
	}
}

func TestStore_PrefixLookup(t *testing.T) {
	store, _ := openTestStore(t)
	a := "fb3cff44-1111-4000-8000-000000000001"
	b := "fb3cff4a-2222-4000-8000-000000000002"
	for _, id := range []string{a, b} {
		if err := store.UpsertSession(SessionRecord{SessionID: id, Provider: "claude", IsValid: true}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.FindSessionByPrefix("fb3cff44")
	if err != nil {
		t.Fatalf("unambiguous prefix should resolve: %v", err)
	}
	if got != a {
		t.Errorf("resolved %s, want %s", got, a)
	}

	if _, err := store.FindSessionByPrefix("fb3cff4a"); err != nil {
		t.Errorf("second prefix should also resolve: %v", err)
	}

	// Both ids share the first 7 characters, so the shorter prefix is
	// ambiguous rather than rejected.
	if _, err := store.FindSessionByPrefix("fb3cff4"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous for the 7-char prefix, got %v", err)
	}

	if _, err := store.FindSessionByPrefix("00000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_PrefixAmbiguity(t *testing.T) {
	store, _ := openTestStore(t)
	// Two ids sharing the first 8 hex characters.
	for _, id := range []string{
		"fb3cff44-1111-4000-8000-000000000001",
		"fb3cff44-2222-4000-8000-000000000002",
	} {
		if err := store.UpsertSession(SessionRecord{SessionID: id, Provider: "claude", IsValid: true}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.FindSessionByPrefix("fb3cff44"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}

func TestStore_SessionFilesOrderedByRole(t *testing.T) {
	store, _ := openTestStore(t)
	sessionID := "fb3cff44-0000-4000-8000-000000000001"

	size := int64(10)
	if err := store.UpsertLogFile(LogFileRecord{
		Path: "/logs/aux.jsonl", SessionID: sessionID, Role: RoleAuxiliary, FileSize: &size, ModTime: tsAt(2),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertLogFile(LogFileRecord{
		Path: "/logs/primary.jsonl", SessionID: sessionID, Role: RolePrimary, FileSize: &size, ModTime: tsAt(1),
	}); err != nil {
		t.Fatal(err)
	}

	files, err := store.GetSessionFiles(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Role != RolePrimary {
		t.Error("the primary file must sort first")
	}
}

func TestStore_LogFileUnchangedPredicate(t *testing.T) {
	mod := time.Date(2026, 1, 4, 12, 0, 0, 123456789, time.UTC)
	size := int64(42)
	rec := LogFileRecord{Path: "/x", FileSize: &size, ModTime: &mod}

	if !rec.Unchanged(42, mod) {
		t.Error("matching pair must be unchanged")
	}
	if rec.Unchanged(43, mod) {
		t.Error("size mismatch must force a rescan")
	}
	if rec.Unchanged(42, mod.Add(time.Nanosecond)) {
		t.Error("mod-time mismatch must force a rescan")
	}
	if (LogFileRecord{Path: "/x"}).Unchanged(42, mod) {
		t.Error("a missing recording must force a rescan")
	}
}

func TestStore_RoundTripPreservesModTime(t *testing.T) {
	store, _ := openTestStore(t)
	mod := time.Date(2026, 1, 4, 12, 0, 0, 123456789, time.UTC)
	size := int64(42)
	if err := store.UpsertLogFile(LogFileRecord{
		Path: "/logs/a.jsonl", SessionID: "s", Role: RolePrimary, FileSize: &size, ModTime: &mod,
	}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetLogFile("/logs/a.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if got.ModTime == nil || !got.ModTime.Equal(mod) {
		t.Errorf("mod time lost precision: %v vs %v", got.ModTime, mod)
	}
	if !got.Unchanged(42, mod) {
		t.Error("a stored record must satisfy the unchanged predicate for its own pair")
	}
}

func TestStore_RemoveLogFileCascadesToOrphanSession(t *testing.T) {
	store, _ := openTestStore(t)
	sessionID := "fb3cff44-0000-4000-8000-000000000009"
	if err := store.UpsertSession(SessionRecord{SessionID: sessionID, Provider: "claude", IsValid: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertLogFile(LogFileRecord{Path: "/logs/only.jsonl", SessionID: sessionID}); err != nil {
		t.Fatal(err)
	}

	if err := store.RemoveLogFile("/logs/only.jsonl"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSession(sessionID); !errors.Is(err, ErrNotFound) {
		t.Error("a session whose every file vanished must be removed")
	}
}

func TestStore_ListSessionsNewestFirstWithCursor(t *testing.T) {
	store, _ := openTestStore(t)
	ids := []string{
		"aaaaaaa1-0000-4000-8000-000000000001",
		"aaaaaaa2-0000-4000-8000-000000000002",
		"aaaaaaa3-0000-4000-8000-000000000003",
	}
	for i, id := range ids {
		if err := store.UpsertSession(SessionRecord{
			SessionID: id, Provider: "claude", StartTS: tsAt(i), IsValid: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := store.ListSessions("", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(first.Sessions))
	}
	if first.Sessions[0].SessionID != ids[2] {
		t.Error("listing must be newest-first")
	}
	if first.NextCursor == "" {
		t.Fatal("expected a continuation cursor")
	}

	second, err := store.ListSessions("", 2, first.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Sessions) != 1 || second.Sessions[0].SessionID != ids[0] {
		t.Errorf("cursor page wrong: %+v", second.Sessions)
	}
	if second.NextCursor != "" {
		t.Error("exhausted listing must not return a cursor")
	}
}

func TestStore_ProjectScopedListingAndCounts(t *testing.T) {
	store, _ := openTestStore(t)
	for i, hash := range []string{"hash-a", "hash-a", "hash-b"} {
		id := []string{"bbbbbbb1", "bbbbbbb2", "bbbbbbb3"}[i] + "-0000-4000-8000-000000000000"
		if err := store.UpsertSession(SessionRecord{
			SessionID: id, ProjectHash: hash, Provider: "claude", StartTS: tsAt(i), IsValid: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.ListSessions("hash-a", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Sessions) != 2 {
		t.Errorf("expected 2 sessions for hash-a, got %d", len(page.Sessions))
	}
	count, err := store.CountSessionsForProject("hash-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestStore_ProjectsOrderedByLastScan(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.UpsertProject(ProjectRecord{Hash: "older", RootPath: "/a", LastScannedAt: tsAt(0)}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertProject(ProjectRecord{Hash: "newer", RootPath: "/b", LastScannedAt: tsAt(5)}); err != nil {
		t.Fatal(err)
	}

	projects, err := store.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Hash != "newer" {
		t.Errorf("projects must order by last_scanned_at desc: %+v", projects)
	}
}

func TestStore_ProjectUpsertKeepsRootPath(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.UpsertProject(ProjectRecord{Hash: "h", RootPath: "/keep", LastScannedAt: tsAt(0)}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertProject(ProjectRecord{Hash: "h", LastScannedAt: tsAt(1)}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetProject("h")
	if err != nil {
		t.Fatal(err)
	}
	if got.RootPath != "/keep" {
		t.Errorf("a nil root path on conflict must keep the recorded one, got %q", got.RootPath)
	}
	if got.LastScannedAt == nil || !got.LastScannedAt.Equal(*tsAt(1)) {
		t.Error("last_scanned_at must refresh")
	}
}

func TestStore_DurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSession(SessionRecord{
		SessionID: "ccccccc1-0000-4000-8000-000000000001", Provider: "gemini", IsValid: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.GetSession("ccccccc1-0000-4000-8000-000000000001"); err != nil {
		t.Errorf("committed upsert must be durable on restart: %v", err)
	}
}
