// Package entry defines the core record types shared by the store, index,
// query, and sync layers.
package entry

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of knowledge an entry captures.
type Category string

// Valid entry categories.
const (
	CategoryArchitecture Category = "architecture"
	CategoryTesting      Category = "testing"
	CategoryCodeStyle    Category = "code-style"
	CategoryDatabase     Category = "database"
	CategoryAPI          Category = "api"
	CategoryDecisions    Category = "decisions"
	CategoryWorkflows    Category = "workflows"
	CategoryDomain       Category = "domain"
	CategoryDebugging    Category = "debugging"
	CategoryObservation  Category = "observation"
)

// Categories lists all valid categories in display order.
var Categories = []Category{
	CategoryArchitecture,
	CategoryTesting,
	CategoryCodeStyle,
	CategoryDatabase,
	CategoryAPI,
	CategoryDecisions,
	CategoryWorkflows,
	CategoryDomain,
	CategoryDebugging,
	CategoryObservation,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory validates and returns a category from user input.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Confidence is the trust level attached to an entry.
type Confidence string

// Confidence levels, ordered low to high.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// ParseConfidence validates and returns a confidence level from user input.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown confidence %q (want low, medium, or high)", s)
	}
	return c, nil
}

// Rank returns an ordinal for comparing confidence levels.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return -1
}

// MaxConfidence returns the higher of two confidence levels.
func MaxConfidence(a, b Confidence) Confidence {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// Origin records how an entry entered the store.
type Origin string

// Entry provenance values.
const (
	OriginManual  Origin = "manual"
	OriginReflect Origin = "reflect"
	OriginExtract Origin = "extract"
	OriginSync    Origin = "sync"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginManual || o == OriginReflect || o == OriginExtract || o == OriginSync
}

// Entry is a single context or learning record.
//
// RelatedIDs is a lookup-only adjacency relation: ids are resolved through
// the store on demand and may form cycles.
type Entry struct {
	ID          string     `json:"id"`
	Category    Category   `json:"category"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Confidence  Confidence `json:"confidence"`
	Tags        []string   `json:"tags,omitempty"`
	RelatedIDs  []string   `json:"related_ids,omitempty"`
	Origin      Origin     `json:"origin"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Tombstoned  bool       `json:"tombstoned,omitempty"`
	NeedsReview bool       `json:"needs_review,omitempty"`
	Clock       Clock      `json:"clock"`
}

// NewID returns a fresh globally unique entry id.
func NewID() string {
	return uuid.New().String()
}

// Validate checks required fields and enum values.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Title == "" {
		return fmt.Errorf("entry %s: title is empty", e.ID)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("entry %s: unknown category %q", e.ID, e.Category)
	}
	if !e.Confidence.Valid() {
		return fmt.Errorf("entry %s: unknown confidence %q", e.ID, e.Confidence)
	}
	if !e.Origin.Valid() {
		return fmt.Errorf("entry %s: unknown origin %q", e.ID, e.Origin)
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	c.RelatedIDs = append([]string(nil), e.RelatedIDs...)
	return &c
}

// NormalizeTags sorts and deduplicates the tag set in place.
// Tag order is not meaningful; normalizing keeps serialized entries
// byte-stable across workstations.
func (e *Entry) NormalizeTags() {
	e.Tags = dedupeSorted(e.Tags)
	e.RelatedIDs = dedupeSorted(e.RelatedIDs)
}

// Equal compares user-set fields (everything except clocks and timestamps).
func (e *Entry) Equal(other *Entry) bool {
	if e.ID != other.ID || e.Category != other.Category ||
		e.Title != other.Title || e.Body != other.Body ||
		e.Confidence != other.Confidence || e.Origin != other.Origin ||
		e.Tombstoned != other.Tombstoned {
		return false
	}
	return equalStrings(dedupeSorted(e.Tags), dedupeSorted(other.Tags)) &&
		equalStrings(dedupeSorted(e.RelatedIDs), dedupeSorted(other.RelatedIDs))
}

// UnionTags returns the sorted union of two tag sets.
func UnionTags(a, b []string) []string {
	return dedupeSorted(append(append([]string(nil), a...), b...))
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if s == "" || (i > 0 && s == out[i-1]) {
			continue
		}
		out[n] = s
		n++
	}
	if n == 0 {
		return nil
	}
	return out[:n]
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
