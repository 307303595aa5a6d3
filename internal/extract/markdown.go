package extract

import (
	"fmt"
	"strings"
)

// Section is a heading-delimited slice of a markdown document. The
// preamble before the first heading becomes a section with an empty
// heading at level 0.
type Section struct {
	Heading string
	Level   int
	Lines   []string
}

// Paragraphs groups the section body into blank-line separated blocks.
// Fenced code blocks are kept intact and skipped by classification.
func (s *Section) Paragraphs() []string {
	var paras []string
	var cur []string
	inFence := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		paras = append(paras, strings.Join(cur, " "))
		cur = nil
	}

	for _, line := range s.Lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			flush()
			continue
		}
		if inFence {
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		cur = append(cur, trimmed)
	}
	flush()
	return paras
}

// ListItems returns the text of top-level list items in the section.
func (s *Section) ListItems() []string {
	var items []string
	for _, line := range s.Lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			items = append(items, strings.TrimSpace(trimmed[2:]))
		}
	}
	return items
}

// SplitSections parses a markdown document into heading-delimited
// sections. Setext headings are not supported; ATX headings (#) are what
// the team writes.
func SplitSections(doc string) ([]Section, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	sections := []Section{{Level: 0}}
	inFence := false

	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(trimmed, "#") {
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' {
				level++
			}
			rest := strings.TrimSpace(trimmed[level:])
			if level <= 6 && rest != "" {
				sections = append(sections, Section{Heading: rest, Level: level})
				continue
			}
		}
		cur := &sections[len(sections)-1]
		cur.Lines = append(cur.Lines, line)
	}

	if inFence {
		return nil, fmt.Errorf("%w: unterminated code fence", ErrParse)
	}

	return sections, nil
}

// SplitSentences segments text at sentence boundaries. Good enough for
// prose written by the team; abbreviations with trailing periods will
// over-split and that is acceptable here.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush()
			}
		}
	}
	flush()
	return out
}
