package syncer

import (
	"strings"

	"github.com/lorekeep/lore/internal/entry"
)

// mergeEntries combines two concurrent versions of an entry into one.
// Sides are ordered by workstation id before merging, so both
// workstations compute byte-identical merge results regardless of which
// side was local. Tags and related ids union; confidence takes the
// maximum (an automated merge never lowers it); divergent bodies get
// conflict markers and the NeedsReview flag.
func mergeEntries(a, b *entry.Entry) *entry.Entry {
	first, second := a, b
	if second.Clock.Workstation < first.Clock.Workstation {
		first, second = second, first
	}

	m := first.Clone()
	m.Tags = entry.UnionTags(first.Tags, second.Tags)
	m.RelatedIDs = entry.UnionTags(first.RelatedIDs, second.RelatedIDs)
	m.Confidence = entry.MaxConfidence(first.Confidence, second.Confidence)
	m.Tombstoned = first.Tombstoned || second.Tombstoned

	if second.UpdatedAt.After(m.UpdatedAt) {
		m.UpdatedAt = second.UpdatedAt
	}
	if !second.CreatedAt.IsZero() && (m.CreatedAt.IsZero() || second.CreatedAt.Before(m.CreatedAt)) {
		m.CreatedAt = second.CreatedAt
	}

	if first.Title != second.Title {
		// Shorter divergence than bodies; keep the first side's title and
		// let the body markers carry the disagreement.
		m.NeedsReview = true
	}
	if first.Body != second.Body {
		m.Body = conflictBody(first, second)
		m.NeedsReview = true
	}

	m.NormalizeTags()
	return m
}

// conflictBody renders both bodies with git-style markers labelled by
// workstation id.
func conflictBody(first, second *entry.Entry) string {
	var b strings.Builder
	b.WriteString("<<<<<<< " + first.Clock.Workstation + "\n")
	b.WriteString(first.Body)
	b.WriteString("\n=======\n")
	b.WriteString(second.Body)
	b.WriteString("\n>>>>>>> " + second.Clock.Workstation)
	return b.String()
}
