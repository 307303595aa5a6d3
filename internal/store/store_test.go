package store

import (
	"errors"
	"os"
	"testing"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/entry"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(config.CachePath(root), 0755); err != nil {
		t.Fatalf("creating repo layout: %v", err)
	}
	return root
}

func openTest(t *testing.T, root, workstation string) *Store {
	t.Helper()
	s, err := Open(root, Options{Workstation: workstation})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func testEntry(title string) *entry.Entry {
	return &entry.Entry{
		Category:   entry.CategoryDecisions,
		Title:      title,
		Body:       "body of " + title,
		Confidence: entry.ConfidenceMedium,
		Origin:     entry.OriginManual,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	id, err := s.Put(testEntry("first"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id == "" {
		t.Fatal("Put should assign an id")
	}

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get after Put should succeed")
	}
	if got.Title != "first" {
		t.Errorf("Title = %q, want first", got.Title)
	}
	if got.Clock.Workstation != "ws-a" || got.Clock.Counter == 0 {
		t.Errorf("entry clock not stamped: %v", got.Clock)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestReopenReplaysLog(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	id, err := s.Put(testEntry("persisted"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s2 := openTest(t, root, "ws-a")
	defer s2.Close()
	got, ok := s2.Get(id)
	if !ok || got.Title != "persisted" {
		t.Fatal("entry should survive reopen via log replay")
	}
	if s2.Counter() == 0 {
		t.Error("counter should be restored from the log")
	}
}

func TestWriterLockContention(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	if _, err := Open(root, Options{Workstation: "ws-b"}); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open should fail with ErrLocked, got %v", err)
	}

	// Read-only opens bypass the lock.
	ro, err := Open(root, Options{Workstation: "ws-b", ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	defer ro.Close()
	if _, err := ro.Put(testEntry("nope")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Put on read-only store = %v, want ErrReadOnly", err)
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	root := newTestRepo(t)
	// A lock naming a dead pid on this host is stale.
	host, _ := os.Hostname()
	lock := `{"pid":999999999,"hostname":"` + host + `","created_at":"2020-01-01T00:00:00Z"}`
	if err := os.WriteFile(config.LockPath(root), []byte(lock), 0644); err != nil {
		t.Fatalf("planting stale lock: %v", err)
	}

	s, err := Open(root, Options{Workstation: "ws-a"})
	if err != nil {
		t.Fatalf("Open should reclaim the stale lock, got %v", err)
	}
	s.Close()
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	id, _ := s.Put(testEntry("versioned"))
	first, _ := s.Get(id)

	edit := first.Clone()
	edit.Body = "revised"
	if _, err := s.Put(edit); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	second, _ := s.Get(id)
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("update should preserve created_at")
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Error("updated_at must never decrease")
	}
	if !first.Clock.Less(second.Clock) {
		t.Error("update clock should dominate the previous revision")
	}
}

func TestAutomatedWritesNeverLowerConfidence(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	e := testEntry("confident")
	e.Confidence = entry.ConfidenceHigh
	id, _ := s.Put(e)

	// Automated path (PutBatch) tries to downgrade: clamped to high.
	cur, _ := s.Get(id)
	down := cur.Clone()
	down.Confidence = entry.ConfidenceLow
	if _, err := s.PutBatch([]*entry.Entry{down}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	got, _ := s.Get(id)
	if got.Confidence != entry.ConfidenceHigh {
		t.Errorf("automated write lowered confidence to %s", got.Confidence)
	}

	// Explicit user edit may downgrade.
	user := got.Clone()
	user.Confidence = entry.ConfidenceLow
	if _, err := s.Put(user); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ = s.Get(id)
	if got.Confidence != entry.ConfidenceLow {
		t.Errorf("user edit should lower confidence, got %s", got.Confidence)
	}
}

func TestDeleteTombstones(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	id, _ := s.Put(testEntry("doomed"))
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, ok := s.Get(id)
	if !ok || !got.Tombstoned {
		t.Fatal("deleted entry should remain readable as a tombstone")
	}
	if live := s.List(Filter{}); len(live) != 0 {
		t.Errorf("List should exclude tombstones, got %d", len(live))
	}
	if all := s.List(Filter{IncludeTombstoned: true}); len(all) != 1 {
		t.Errorf("List(IncludeTombstoned) should return the tombstone")
	}

	// The tombstone op stays in the log for sync convergence.
	ops, err := s.AllOps()
	if err != nil {
		t.Fatalf("AllOps: %v", err)
	}
	if ops[len(ops)-1].Kind != OpTombstone {
		t.Errorf("last op = %s, want tombstone", ops[len(ops)-1].Kind)
	}
}

func TestCompactAndTailReplay(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")

	idA, _ := s.Put(testEntry("before compaction"))
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if s.TailLen() != 0 {
		t.Errorf("TailLen after compact = %d, want 0", s.TailLen())
	}
	idB, _ := s.Put(testEntry("after compaction"))
	counter := s.Counter()
	s.Close()

	s2 := openTest(t, root, "ws-a")
	defer s2.Close()
	if _, ok := s2.Get(idA); !ok {
		t.Error("snapshot entry missing after reopen")
	}
	if _, ok := s2.Get(idB); !ok {
		t.Error("tail entry missing after reopen")
	}
	if s2.TailLen() != 1 {
		t.Errorf("TailLen after reopen = %d, want 1 (tail only)", s2.TailLen())
	}
	if s2.Counter() != counter {
		t.Errorf("counter after reopen = %d, want %d", s2.Counter(), counter)
	}
}

func TestCorruptLogSurfaces(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	s.Put(testEntry("fine"))
	s.Close()

	f, err := os.OpenFile(config.OpLogPath(root), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()

	if _, err := Open(root, Options{Workstation: "ws-a"}); !errors.Is(err, ErrCorruption) {
		t.Fatalf("Open on corrupt log = %v, want ErrCorruption", err)
	}
}

func TestOpsSince(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	s.Put(testEntry("one"))
	s.Put(testEntry("two"))
	s.Put(testEntry("three"))

	ops, err := s.OpsSince(1)
	if err != nil {
		t.Fatalf("OpsSince: %v", err)
	}
	if len(ops) != 2 {
		t.Errorf("OpsSince(1) returned %d ops, want 2", len(ops))
	}
}

func TestConcurrencyDetection(t *testing.T) {
	base := entry.Clock{Workstation: "ws-a", Counter: 1}
	ours := Op{Kind: OpUpdate, EntryID: "x",
		Clock: entry.Clock{Workstation: "ws-a", Counter: 2}, Parent: base}
	theirs := Op{Kind: OpUpdate, EntryID: "x",
		Clock: entry.Clock{Workstation: "ws-b", Counter: 2}, Parent: base}
	successor := Op{Kind: OpUpdate, EntryID: "x",
		Clock: entry.Clock{Workstation: "ws-b", Counter: 3}, Parent: ours.Clock}

	if !Concurrent(&ours, &theirs) {
		t.Error("siblings built on the same parent are concurrent")
	}
	if Concurrent(&ours, &successor) {
		t.Error("a direct successor is not concurrent")
	}
	if !successor.Supersedes(&ours) {
		t.Error("successor should supersede its parent op")
	}
	if ours.Supersedes(&theirs) || theirs.Supersedes(&ours) {
		t.Error("concurrent siblings must not supersede each other")
	}
}

func TestApplyHookRunsOnCommit(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	defer s.Close()

	var seen int
	s.AddApplyHook(func(ops []Op) { seen += len(ops) })

	s.Put(testEntry("hooked"))
	if seen != 1 {
		t.Errorf("hook saw %d ops, want 1", seen)
	}

	batch := []*entry.Entry{testEntry("b1"), testEntry("b2")}
	if _, err := s.PutBatch(batch); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	if seen != 3 {
		t.Errorf("hook saw %d ops, want 3", seen)
	}
}

func TestLoadFallsBackOnRewrittenLog(t *testing.T) {
	root := newTestRepo(t)
	s := openTest(t, root, "ws-a")
	oldID, _ := s.Put(testEntry("snapshotted"))
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	s.Close()

	// Rewrite the log from scratch: the snapshot prefix hash no longer
	// matches, so open must fall back to a full replay of the new log.
	os.Remove(config.OpLogPath(root))
	fresh := testEntry("replacement")
	fresh.ID = entry.NewID()
	op := Op{
		Kind:      OpInsert,
		EntryID:   fresh.ID,
		Clock:     entry.Clock{Workstation: "ws-a", Counter: 1},
		Payload:   fresh,
		Timestamp: fresh.UpdatedAt,
	}
	if err := AppendOps(config.OpLogPath(root), []Op{op}); err != nil {
		t.Fatalf("rewriting log: %v", err)
	}

	s2 := openTest(t, root, "ws-a")
	defer s2.Close()
	if _, ok := s2.Get(oldID); ok {
		t.Error("stale snapshot state should be discarded after log rewrite")
	}
	if _, ok := s2.Get(fresh.ID); !ok {
		t.Error("entry from rewritten log should be present")
	}
}
