package extract

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lore/internal/entry"
)

// ruleKind tags what a rule matches against. Rules are plain tagged
// values evaluated in order, not an interface hierarchy.
type ruleKind int

const (
	// ruleSentence matches individual sentences by regex.
	ruleSentence ruleKind = iota
	// ruleHeading matches whole sections by heading name.
	ruleHeading
	// ruleExclude drops a section from extraction entirely.
	ruleExclude
)

// Rule is one tagged pattern-matcher in the extraction pipeline.
type Rule struct {
	kind       ruleKind
	name       string
	re         *regexp.Regexp // ruleSentence
	headings   []string       // ruleHeading, ruleExclude (lowercase)
	category   entry.Category
	confidence entry.Confidence
}

// matchesHeading reports whether the rule's heading set contains h.
func (r *Rule) matchesHeading(h string) bool {
	h = strings.ToLower(strings.TrimSpace(h))
	for _, want := range r.headings {
		if h == want {
			return true
		}
	}
	return false
}

// DefaultRules returns the extraction rule list in evaluation order.
// Excludes run first so their sections never reach the other rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			kind:     ruleExclude,
			name:     "open_questions",
			headings: []string{"open questions"},
		},
		{
			kind:       ruleSentence,
			name:       "decision_marker",
			re:         regexp.MustCompile(`(?i)\b(decided|we will use|we chose|chose \S+ over|going with|settled on)\b`),
			category:   entry.CategoryDecisions,
			confidence: entry.ConfidenceHigh,
		},
		{
			kind:       ruleHeading,
			name:       "architecture_heading",
			headings:   []string{"architecture", "pattern", "patterns", "design"},
			category:   entry.CategoryArchitecture,
			confidence: entry.ConfidenceMedium,
		},
	}
}

// Candidate is an entry proposed by the rules, before deduplication.
type Candidate struct {
	Entry   *entry.Entry
	Rule    string
	Section string
}

// classify runs the rule list over parsed sections and returns candidates
// in document order.
func classify(sections []Section, rules []Rule, origin entry.Origin) []Candidate {
	var out []Candidate

	for si := range sections {
		sec := &sections[si]
		if excluded(sec.Heading, rules) {
			continue
		}

		secTag := headingTag(sec.Heading)

		for _, r := range rules {
			switch r.kind {
			case ruleSentence:
				for _, para := range sec.Paragraphs() {
					for _, sent := range SplitSentences(para) {
						if !r.re.MatchString(sent) {
							continue
						}
						out = append(out, Candidate{
							Entry:   buildEntry(sent, sent, r, secTag, origin),
							Rule:    r.name,
							Section: sec.Heading,
						})
					}
				}
			case ruleHeading:
				if !r.matchesHeading(sec.Heading) {
					continue
				}
				for _, para := range sec.Paragraphs() {
					out = append(out, Candidate{
						Entry:   buildEntry(para, para, r, secTag, origin),
						Rule:    r.name,
						Section: sec.Heading,
					})
				}
			}
		}
	}

	return out
}

func excluded(heading string, rules []Rule) bool {
	for _, r := range rules {
		if r.kind == ruleExclude && r.matchesHeading(heading) {
			return true
		}
	}
	return false
}

// titleMaxLen bounds generated titles; bodies keep the full text.
const titleMaxLen = 80

func buildEntry(title, body string, r Rule, tag string, origin entry.Origin) *entry.Entry {
	title = strings.TrimSpace(title)
	if len(title) > titleMaxLen {
		cut := strings.LastIndex(title[:titleMaxLen], " ")
		if cut < titleMaxLen/2 {
			cut = titleMaxLen
		}
		title = title[:cut]
	}

	var tags []string
	if tag != "" {
		tags = []string{tag}
	}

	return &entry.Entry{
		Category:   r.category,
		Title:      title,
		Body:       strings.TrimSpace(body),
		Confidence: r.confidence,
		Tags:       tags,
		Origin:     origin,
	}
}

// headingTag slugs a section heading into a tag.
func headingTag(heading string) string {
	heading = strings.ToLower(strings.TrimSpace(heading))
	if heading == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range heading {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
