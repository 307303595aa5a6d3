// Package route classifies free text to a tracking destination. The
// classifier is a pure function over compiled patterns: no I/O, no state,
// and it cannot fail — unmatched text lands in Local.
package route

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/extract"
)

// Destination is where a piece of text should be tracked.
type Destination string

const (
	DestGitHub Destination = "github"
	DestNotion Destination = "notion"
	DestLocal  Destination = "local"
)

// Decision is the classification of one text fragment.
type Decision struct {
	Text        Fragment         `json:"text"`
	Destination Destination      `json:"destination"`
	Rule        string           `json:"rule,omitempty"`
	Category    entry.Category   `json:"category,omitempty"`
	Confidence  entry.Confidence `json:"confidence,omitempty"`
}

// Fragment carries the classified text and its position in the input.
type Fragment struct {
	Body  string `json:"body"`
	Index int    `json:"index"`
}

// pattern is one named regex bound to a destination. Patterns are
// evaluated in order; the first hit wins.
type pattern struct {
	name string
	re   *regexp.Regexp
	dest Destination
}

// destPatterns is the fixed evaluation order: GitHub first, then Notion,
// then the Local default.
var destPatterns = []pattern{
	{
		name: "github_ref",
		re:   regexp.MustCompile(`(?:https?://)?(?:www\.)?github\.com/[^/\s]+/[^/\s]+(?:/(?:issues|pull)/\d+)?`),
		dest: DestGitHub,
	},
	{
		name: "github_issue_shorthand",
		re:   regexp.MustCompile(`\b[\w.-]+/[\w.-]+#\d+\b`),
		dest: DestGitHub,
	},
	{
		name: "github_keyword",
		re:   regexp.MustCompile(`(?i)\b(issue|pull request|\bpr\b|bug|fix(es|ed)?|regression|ci fail(ure|ed)?)\b`),
		dest: DestGitHub,
	},
	{
		name: "notion_url",
		re:   regexp.MustCompile(`(?:https?://)?(?:www\.)?notion\.so/\S+`),
		dest: DestNotion,
	},
	{
		name: "notion_keyword",
		re:   regexp.MustCompile(`(?i)\b(doc(ument)?s?|spec|design doc|runbook|wiki|onboarding|meeting notes)\b`),
		dest: DestNotion,
	},
}

// Classify routes a whole text to a single destination.
func Classify(text string) Decision {
	return classifyFragment(Fragment{Body: strings.TrimSpace(text)})
}

// ClassifySplit segments the text at sentence boundaries and classifies
// each sentence independently.
func ClassifySplit(text string) []Decision {
	sentences := extract.SplitSentences(text)
	out := make([]Decision, 0, len(sentences))
	for i, s := range sentences {
		out = append(out, classifyFragment(Fragment{Body: s, Index: i}))
	}
	return out
}

func classifyFragment(f Fragment) Decision {
	for _, p := range destPatterns {
		if p.re.MatchString(f.Body) {
			return Decision{Text: f, Destination: p.dest, Rule: p.name}
		}
	}
	// Default: keep it local as a low-confidence observation.
	return Decision{
		Text:        f,
		Destination: DestLocal,
		Category:    entry.CategoryObservation,
		Confidence:  entry.ConfidenceLow,
	}
}
