// Package extract turns free-form documents into structured learning
// entries, deduplicated against the existing store.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/index"
	"github.com/lorekeep/lore/internal/query"
	"github.com/lorekeep/lore/internal/store"
)

// Errors returned by extraction.
var (
	// ErrParse aborts the whole extraction batch: no partial imports.
	ErrParse = errors.New("document parse failure")
)

// Engine extracts learnings from documents. Deduplication runs each
// candidate through the query engine, so the engine needs both the store
// and a synchronized index.
type Engine struct {
	store  *store.Store
	engine *query.Engine
	rules  []Rule
	log    *zap.Logger
}

// New builds an extraction engine with the default rule list.
func New(st *store.Store, qe *query.Engine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, engine: qe, rules: DefaultRules(), log: logger}
}

// Report summarizes one extraction run.
type Report struct {
	Created []string `json:"created"` // new entry ids
	Touched []string `json:"touched"` // existing ids refreshed by dedup
	Scanned int      `json:"scanned"` // candidates considered
}

// File extracts from a markdown or PDF file, selected by extension.
func (x *Engine) File(path string) (*Report, error) {
	var doc string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := pdfText(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		doc = text
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		doc = string(data)
	}
	return x.Text(doc, entry.OriginExtract)
}

// Text extracts from an in-memory document. The candidate batch commits
// atomically: a failure anywhere leaves the store untouched. Running the
// same document twice creates nothing the second time.
func (x *Engine) Text(doc string, origin entry.Origin) (*Report, error) {
	sections, err := SplitSections(doc)
	if err != nil {
		return nil, err
	}

	candidates := classify(sections, x.rules, origin)
	report := &Report{Scanned: len(candidates)}

	var fresh []*entry.Entry
	seen := make(map[string]bool) // dedup within the document itself
	touched := make(map[string]bool)

	for _, cand := range candidates {
		key := strings.ToLower(cand.Entry.Title + "\n" + cand.Entry.Body)
		if seen[key] {
			continue
		}
		seen[key] = true

		dupID, err := x.findDuplicate(cand.Entry)
		if err != nil {
			return nil, err
		}
		if dupID != "" {
			if !touched[dupID] {
				touched[dupID] = true
				report.Touched = append(report.Touched, dupID)
			}
			continue
		}
		fresh = append(fresh, cand.Entry)
	}

	ids, err := x.store.PutBatch(fresh)
	if err != nil {
		return nil, err
	}
	report.Created = ids

	for id := range touched {
		if err := x.store.Touch(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, err
		}
	}

	x.log.Debug("extraction finished",
		zap.Int("created", len(report.Created)),
		zap.Int("touched", len(report.Touched)))
	return report, nil
}

// findDuplicate returns the id of an existing entry the candidate
// duplicates, or "" if it is new. The top query match is compared on
// combined title+body trigram similarity against the configured
// threshold.
func (x *Engine) findDuplicate(cand *entry.Entry) (string, error) {
	page, err := x.engine.Query(query.Request{
		Text:  cand.Title + " " + cand.Body,
		Limit: 1,
	})
	if err != nil {
		return "", err
	}
	if len(page.Results) == 0 {
		return "", nil
	}

	top := page.Results[0].Entry
	candText := cand.Title + "\n" + cand.Body
	topText := top.Title + "\n" + top.Body
	if index.Similarity(candText, topText) > x.store.Config().DedupThreshold {
		return top.ID, nil
	}
	return "", nil
}
