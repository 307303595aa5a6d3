// Package index maintains the inverted and trigram indexes over store
// contents. Updates are synchronous with store writes; there is no window
// where store and index disagree.
package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lorekeep/lore/internal/entry"
)

// Errors returned by index operations.
var (
	// ErrRebuildRequired is returned when the cached index cannot be used
	// and must be rebuilt from the op log.
	ErrRebuildRequired = errors.New("index rebuild required")
)

// CurrentVersion is the gob format version. Bump on breaking changes.
const CurrentVersion = 1

// Posting records one entry's occurrences of a token.
type Posting struct {
	TF        int
	Positions []int
}

// Index is the in-memory inverted + trigram index. Exported fields are gob
// encoded for the on-disk cache.
type Index struct {
	mu sync.RWMutex

	Version int
	// Fingerprint ties the cache to a log position (op count + prefix
	// hash); a mismatch at load means the cache is stale.
	Fingerprint string

	// Postings maps token -> entry id -> posting.
	Postings map[string]map[string]*Posting
	// TrigramTokens maps trigram -> set of indexed tokens containing it.
	TrigramTokens map[string]map[string]struct{}
	// Docs tracks which entries are indexed, with their token lists for
	// cheap removal.
	Docs map[string][]string
}

// New creates an empty index.
func New() *Index {
	return &Index{
		Version:       CurrentVersion,
		Postings:      make(map[string]map[string]*Posting),
		TrigramTokens: make(map[string]map[string]struct{}),
		Docs:          make(map[string][]string),
	}
}

// Build populates the index from scratch with the given live entries.
func Build(entries []*entry.Entry) *Index {
	idx := New()
	for _, e := range entries {
		idx.Add(e)
	}
	return idx
}

// indexText returns the searchable text of an entry.
func indexText(e *entry.Entry) string {
	text := e.Title + "\n" + e.Body
	for _, tag := range e.Tags {
		text += "\n" + tag
	}
	return text
}

// Add indexes an entry, replacing any previous postings for its id.
// Tombstoned entries are removed instead.
func (idx *Index) Add(e *entry.Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(e.ID)
	if e.Tombstoned {
		return
	}

	tokens := Tokenize(indexText(e))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		postings, ok := idx.Postings[tok.Term]
		if !ok {
			postings = make(map[string]*Posting)
			idx.Postings[tok.Term] = postings
			for _, tri := range Trigrams(tok.Term) {
				set, ok := idx.TrigramTokens[tri]
				if !ok {
					set = make(map[string]struct{})
					idx.TrigramTokens[tri] = set
				}
				set[tok.Term] = struct{}{}
			}
		}
		p, ok := postings[e.ID]
		if !ok {
			p = &Posting{}
			postings[e.ID] = p
			terms = append(terms, tok.Term)
		}
		p.TF++
		p.Positions = append(p.Positions, tok.Position)
	}
	idx.Docs[e.ID] = terms
}

// Remove drops all postings for an entry id.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	terms, ok := idx.Docs[id]
	if !ok {
		return
	}
	for _, term := range terms {
		postings := idx.Postings[term]
		delete(postings, id)
		if len(postings) == 0 {
			delete(idx.Postings, term)
			for _, tri := range Trigrams(term) {
				set := idx.TrigramTokens[tri]
				delete(set, term)
				if len(set) == 0 {
					delete(idx.TrigramTokens, tri)
				}
			}
		}
	}
	delete(idx.Docs, id)
}

// SetFingerprint records the log position this index reflects.
func (idx *Index) SetFingerprint(fp string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Fingerprint = fp
}

// DocCount returns the number of indexed entries.
func (idx *Index) DocCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Docs)
}

// Exact returns the postings for a token, keyed by entry id.
func (idx *Index) Exact(term string) map[string]Posting {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	postings, ok := idx.Postings[term]
	if !ok {
		return nil
	}
	out := make(map[string]Posting, len(postings))
	for id, p := range postings {
		out[id] = Posting{TF: p.TF, Positions: append([]int(nil), p.Positions...)}
	}
	return out
}

// FuzzyMatch is an indexed token similar to a query token.
type FuzzyMatch struct {
	Term       string
	Similarity float64
}

// Fuzzy returns indexed tokens whose trigram Jaccard similarity with the
// query term is at least threshold, best first. Terms shorter than
// MinTrigramTokenLen never fuzzy-match; callers fall back to exact or
// substring matching for those.
func (idx *Index) Fuzzy(term string, threshold float64) []FuzzyMatch {
	queryTris := Trigrams(term)
	if len(queryTris) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := make(map[string]struct{})
	for _, tri := range queryTris {
		for tok := range idx.TrigramTokens[tri] {
			candidates[tok] = struct{}{}
		}
	}

	var out []FuzzyMatch
	for tok := range candidates {
		if tok == term {
			continue // exact matches are scored separately
		}
		sim := Jaccard(queryTris, Trigrams(tok))
		if sim >= threshold {
			out = append(out, FuzzyMatch{Term: tok, Similarity: sim})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Tokens returns all indexed tokens containing the given term as a
// substring. Supports the short-token fallback path.
func (idx *Index) Tokens() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.Postings))
	for term := range idx.Postings {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Save persists the index cache using gob encoding. Writes to a temp file
// then renames for atomicity.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(idx); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Load reads a cached index and checks it against the expected log
// fingerprint. Any mismatch returns ErrRebuildRequired; the caller then
// rebuilds from the store.
func Load(path, fingerprint string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRebuildRequired
		}
		return nil, fmt.Errorf("opening index cache: %w", err)
	}
	defer f.Close()

	var idx Index
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&idx); err != nil {
		return nil, fmt.Errorf("%w: decoding cache: %v", ErrRebuildRequired, err)
	}

	if idx.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: cache version %d, want %d", ErrRebuildRequired, idx.Version, CurrentVersion)
	}
	if idx.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: stale cache fingerprint", ErrRebuildRequired)
	}

	if idx.Postings == nil {
		idx.Postings = make(map[string]map[string]*Posting)
	}
	if idx.TrigramTokens == nil {
		idx.TrigramTokens = make(map[string]map[string]struct{})
	}
	if idx.Docs == nil {
		idx.Docs = make(map[string][]string)
	}

	return &idx, nil
}
