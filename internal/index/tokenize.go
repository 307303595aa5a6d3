package index

import (
	"strings"
	"unicode"
)

// MinTrigramTokenLen is the shortest token that gets trigram treatment.
// Below three characters a trigram set degenerates, so such tokens match
// exactly or by substring only.
const MinTrigramTokenLen = 3

// Token is a normalized term with its position in the source text.
type Token struct {
	Term     string
	Position int
}

// Tokenize lowercases text and splits it on non-alphanumeric runs,
// recording each term's ordinal position.
func Tokenize(text string) []Token {
	var tokens []Token
	var b strings.Builder
	pos := 0

	flush := func() {
		if b.Len() == 0 {
			return
		}
		tokens = append(tokens, Token{Term: b.String(), Position: pos})
		pos++
		b.Reset()
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// Terms returns just the normalized terms of a text.
func Terms(text string) []string {
	toks := Tokenize(text)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Term
	}
	return out
}

// Trigrams returns the set of 3-character substrings of a term. Terms
// shorter than MinTrigramTokenLen return nil.
func Trigrams(term string) []string {
	runes := []rune(term)
	if len(runes) < MinTrigramTokenLen {
		return nil
	}
	seen := make(map[string]struct{}, len(runes))
	var out []string
	for i := 0; i+MinTrigramTokenLen <= len(runes); i++ {
		tri := string(runes[i : i+MinTrigramTokenLen])
		if _, dup := seen[tri]; dup {
			continue
		}
		seen[tri] = struct{}{}
		out = append(out, tri)
	}
	return out
}

// Jaccard computes set similarity between two trigram slices.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	bset := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := bset[t]; dup {
			continue
		}
		bset[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(set) + len(bset) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similarity scores two free-text strings by trigram overlap of their
// whole normalized text. Used by extraction dedup on title+body.
func Similarity(a, b string) float64 {
	na := strings.Join(Terms(a), " ")
	nb := strings.Join(Terms(b), " ")
	if na == nb {
		return 1
	}
	return Jaccard(Trigrams(na), Trigrams(nb))
}
