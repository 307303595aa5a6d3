package index

import (
	"path/filepath"
	"testing"

	"github.com/lorekeep/lore/internal/entry"
)

func testEntry(id, title, body string, tags ...string) *entry.Entry {
	return &entry.Entry{
		ID:         id,
		Category:   entry.CategoryDebugging,
		Title:      title,
		Body:       body,
		Confidence: entry.ConfidenceMedium,
		Tags:       tags,
		Origin:     entry.OriginManual,
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Retry-loop uses exponential_backoff, twice.")
	var terms []string
	for _, tok := range tokens {
		terms = append(terms, tok.Term)
	}
	want := []string{"retry", "loop", "uses", "exponential", "backoff", "twice"}
	if len(terms) != len(want) {
		t.Fatalf("Tokenize() terms = %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("Tokenize() terms = %v, want %v", terms, want)
		}
	}
	if tokens[0].Position != 0 || tokens[1].Position != 1 {
		t.Error("token positions should be sequential")
	}
}

func TestTrigramsShortTokens(t *testing.T) {
	if got := Trigrams("db"); got != nil {
		t.Errorf("Trigrams(db) = %v, want nil for tokens under %d runes", got, MinTrigramTokenLen)
	}
	got := Trigrams("cache")
	want := []string{"cac", "ach", "che"}
	if len(got) != len(want) {
		t.Fatalf("Trigrams(cache) = %v, want %v", got, want)
	}
}

func TestExactLookup(t *testing.T) {
	idx := New()
	idx.Add(testEntry("e1", "Connection pooling", "The pool caps connections at ten."))
	idx.Add(testEntry("e2", "Other topic", "Nothing relevant."))

	postings := idx.Exact("connections")
	if len(postings) != 1 {
		t.Fatalf("Exact(connections) returned %d entries, want 1", len(postings))
	}
	if _, ok := postings["e1"]; !ok {
		t.Error("Exact(connections) should match e1")
	}
	if idx.Exact("absent") != nil {
		t.Error("Exact(absent) should return nil")
	}
}

func TestFuzzyMatching(t *testing.T) {
	idx := New()
	idx.Add(testEntry("e1", "Connection timeout", "Raise the connection deadline."))

	matches := idx.Fuzzy("connectoin", 0.3)
	found := false
	for _, m := range matches {
		if m.Term == "connection" {
			found = true
			if m.Similarity <= 0 || m.Similarity > 1 {
				t.Errorf("similarity out of range: %v", m.Similarity)
			}
		}
	}
	if !found {
		t.Error("Fuzzy(connectoin) should match the indexed token connection")
	}

	// A threshold above the achievable similarity filters the match out.
	if got := idx.Fuzzy("connectoin", 0.99); len(got) != 0 {
		t.Errorf("Fuzzy with strict threshold = %v, want none", got)
	}
}

func TestTombstonedEntriesAreRemoved(t *testing.T) {
	idx := New()
	e := testEntry("e1", "Visible entry", "body text here")
	idx.Add(e)
	if idx.DocCount() != 1 {
		t.Fatal("entry should be indexed")
	}

	dead := e.Clone()
	dead.Tombstoned = true
	idx.Add(dead)
	if idx.DocCount() != 0 {
		t.Error("tombstoned entry should be dropped from the index")
	}
	if idx.Exact("visible") != nil {
		t.Error("postings should be gone after tombstone")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.gob")

	idx := New()
	idx.Add(testEntry("e1", "Cache invalidation", "Hard problem number two.", "cache"))
	idx.SetFingerprint("42:17")

	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "42:17")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DocCount() != 1 {
		t.Errorf("loaded DocCount = %d, want 1", loaded.DocCount())
	}
	if len(loaded.Exact("cache")) != 1 {
		t.Error("loaded index should answer exact lookups")
	}
}

func TestLoadRejectsStaleFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.gob")

	idx := New()
	idx.SetFingerprint("10:3")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path, "11:4"); err == nil {
		t.Fatal("Load with mismatched fingerprint should fail")
	}
	if _, err := Load(filepath.Join(dir, "missing.gob"), "10:3"); err == nil {
		t.Fatal("Load of missing cache should fail")
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("same text", "same text"); got != 1 {
		t.Errorf("Similarity of identical text = %v, want 1", got)
	}
	a := "we decided to use sqlite for the snapshot"
	b := "we decided to use sqlite for snapshots"
	if got := Similarity(a, b); got < 0.6 {
		t.Errorf("Similarity of near-duplicates = %v, want well above 0.6", got)
	}
	if got := Similarity("alpha beta", "entirely unrelated words"); got > 0.2 {
		t.Errorf("Similarity of unrelated text = %v, want near zero", got)
	}
}
