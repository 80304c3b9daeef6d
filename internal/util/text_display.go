package util

import (
	"sort"
	"strings"
	"unicode"
)

const defaultSnippetRunes = 420

var snippetStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "how": true, "why": true, "who": true, "when": true, "where": true,
	"which": true, "that": true, "this": true, "these": true, "those": true,
	"with": true, "from": true, "does": true, "did": true, "about": true, "into": true,
}

// DisplaySnippet flattens s onto one line and cuts it to maxRunes, adding an
// ellipsis when text was dropped.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultSnippetRunes
	}
	s = NormalizeWhitespace(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, SanitizeText(s)))

	if cut := Truncate(s, maxRunes); len(cut) < len(s) {
		return strings.TrimSpace(cut) + "..."
	}
	return s
}

// DisplayEvidenceSnippet picks the one or two sentences of a chunk that share the
// most terms with the question.
func DisplayEvidenceSnippet(chunkText, question string, maxRunes int) string {
	text := DisplaySnippet(chunkText, 4000)
	if text == "" {
		return ""
	}
	terms := queryTerms(question)
	sentences := splitSentences(text)
	if len(terms) == 0 || len(sentences) < 2 {
		return DisplaySnippet(text, maxRunes)
	}

	type hit struct {
		idx   int
		score int
	}
	hits := make([]hit, len(sentences))
	for i, s := range sentences {
		low := strings.ToLower(s)
		hits[i].idx = i
		for _, t := range terms {
			if strings.Contains(low, t) {
				hits[i].score++
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if hits[0].score == 0 {
		return DisplaySnippet(text, maxRunes)
	}
	picked := []int{hits[0].idx}
	if hits[1].score > 0 {
		picked = append(picked, hits[1].idx)
		sort.Ints(picked)
	}
	parts := make([]string, len(picked))
	for i, idx := range picked {
		parts[i] = sentences[idx]
	}
	return DisplaySnippet(strings.Join(parts, " "), maxRunes)
}

// splitSentences breaks on terminal punctuation followed by a space, so
// decimals and abbreviations like "3.5" stay whole.
func splitSentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			out = append(out, sent)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func queryTerms(q string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(f)) < 3 || snippetStopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
