// Package query ranks store entries against free-text queries.
package query

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/index"
	"github.com/lorekeep/lore/internal/store"
)

// Errors returned by query operations.
var (
	// ErrInvalidCursor is returned when a pagination cursor is malformed
	// or was issued against a store that has since changed.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// Token match weights. A token contributes its best single match kind per
// entry; kinds do not stack for the same token.
const (
	weightExact     = 3.0
	weightFuzzy     = 1.0 // scaled by similarity
	weightSubstring = 0.5
)

// Confidence boost factors.
const (
	boostHigh   = 1.3
	boostMedium = 1.0
	boostLow    = 0.8
)

// recencyBoostMax is the extra factor a just-updated entry receives.
const recencyBoostMax = 0.5

// DefaultLimit is the page size when the request does not set one.
const DefaultLimit = 20

// Engine evaluates queries against one store and its index.
type Engine struct {
	store *store.Store
	idx   *index.Index
	cfg   *config.Config
	now   func() time.Time
}

// New builds an engine. The index must already reflect store contents;
// the caller keeps it synchronized via a store apply hook.
func New(st *store.Store, idx *index.Index, cfg *config.Config) *Engine {
	return &Engine{store: st, idx: idx, cfg: cfg, now: time.Now}
}

// Request describes one query.
type Request struct {
	Text          string
	Categories    []entry.Category
	Confidences   []entry.Confidence
	Tags          []string
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
	Limit         int
	Cursor        string
}

// Result is a ranked entry.
type Result struct {
	Entry *entry.Entry `json:"entry"`
	Score float64      `json:"score"`
}

// Page is one page of ranked results. NextCursor is empty on the last
// page; Total counts all matches regardless of pagination.
type Page struct {
	Results    []Result `json:"results"`
	NextCursor string   `json:"next_cursor,omitempty"`
	Total      int      `json:"total"`
}

// cursor is the decoded pagination state. Fingerprint pins it to a store
// version: ranking is deterministic, so offset-based resume is exact as
// long as the store has not changed.
type cursor struct {
	Offset      int    `json:"offset"`
	Fingerprint string `json:"fingerprint"`
}

// Query tokenizes the text, scores candidates, applies boosts, and
// returns one deterministically ordered page.
func (e *Engine) Query(req Request) (*Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	fp := e.fingerprint()
	offset := 0
	if req.Cursor != "" {
		cur, err := decodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		if cur.Fingerprint != fp {
			return nil, fmt.Errorf("%w: store changed since cursor was issued", ErrInvalidCursor)
		}
		offset = cur.Offset
	}

	filter := store.Filter{
		Categories:    req.Categories,
		Confidences:   req.Confidences,
		Tags:          req.Tags,
		UpdatedAfter:  req.UpdatedAfter,
		UpdatedBefore: req.UpdatedBefore,
	}
	candidates := e.store.List(filter)

	terms := index.Terms(req.Text)
	var ranked []Result
	if len(terms) == 0 {
		// Pure filter query: newest first, no scoring.
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
			return a.ID < b.ID
		})
		for _, c := range candidates {
			ranked = append(ranked, Result{Entry: c})
		}
	} else {
		ranked = e.rank(terms, candidates)
	}

	total := len(ranked)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := &Page{Results: ranked[offset:end], Total: total}
	if end < total {
		next, err := encodeCursor(cursor{Offset: end, Fingerprint: fp})
		if err != nil {
			return nil, err
		}
		page.NextCursor = next
	}
	return page, nil
}

// rank scores candidates for the tokenized query and sorts them.
func (e *Engine) rank(terms []string, candidates []*entry.Entry) []Result {
	byID := make(map[string]*entry.Entry, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		contrib := e.tokenContributions(term, byID)
		for id, w := range contrib {
			scores[id] += w
		}
	}

	now := e.now()
	var out []Result
	for id, base := range scores {
		ent := byID[id]
		score := base * e.recencyBoost(ent.UpdatedAt, now) * confidenceBoost(ent.Confidence)
		out = append(out, Result{Entry: ent, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.UpdatedAt.Equal(b.Entry.UpdatedAt) {
			return a.Entry.UpdatedAt.After(b.Entry.UpdatedAt)
		}
		return a.Entry.ID < b.Entry.ID
	})
	return out
}

// tokenContributions returns, per candidate entry, the best match weight
// this query token achieves: exact beats fuzzy beats substring.
func (e *Engine) tokenContributions(term string, byID map[string]*entry.Entry) map[string]float64 {
	contrib := make(map[string]float64)

	for id := range e.idx.Exact(term) {
		if _, ok := byID[id]; ok {
			contrib[id] = weightExact
		}
	}

	if len(term) >= index.MinTrigramTokenLen {
		for _, m := range e.idx.Fuzzy(term, e.cfg.FuzzyThreshold) {
			w := weightFuzzy * m.Similarity
			for id := range e.idx.Exact(m.Term) {
				if _, ok := byID[id]; !ok {
					continue
				}
				if w > contrib[id] {
					contrib[id] = w
				}
			}
		}
	}

	// Substring match anywhere in the body. Also the only inexact path
	// for tokens too short for trigrams.
	for id, ent := range byID {
		if contrib[id] >= weightSubstring {
			continue
		}
		if strings.Contains(strings.ToLower(ent.Body), term) ||
			strings.Contains(strings.ToLower(ent.Title), term) {
			contrib[id] = weightSubstring
		}
	}

	return contrib
}

// recencyBoost maps updated_at into [1.0, 1.5] over the configured window:
// entries older than the window get 1.0, entries updated now get 1.5.
func (e *Engine) recencyBoost(updatedAt, now time.Time) float64 {
	window := time.Duration(e.cfg.RecencyWindowDays) * 24 * time.Hour
	age := now.Sub(updatedAt)
	frac := 1 - age.Seconds()/window.Seconds()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return 1 + frac*recencyBoostMax
}

func confidenceBoost(c entry.Confidence) float64 {
	switch c {
	case entry.ConfidenceHigh:
		return boostHigh
	case entry.ConfidenceLow:
		return boostLow
	default:
		return boostMedium
	}
}

// fingerprint identifies the current store version for cursor stability.
func (e *Engine) fingerprint() string {
	return fmt.Sprintf("%d:%d", e.store.OpCount(), e.store.Counter())
}

func encodeCursor(c cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.Offset < 0 {
		return c, fmt.Errorf("%w: negative offset", ErrInvalidCursor)
	}
	return c, nil
}
