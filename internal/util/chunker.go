package util

import "strings"

// Span is a chunk of normalized text with rune offsets into that text.
type Span struct {
	Text  string
	Start int
	End   int
}

// NormalizeWhitespace collapses every whitespace run to a single space.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ChunkText splits normalized text into fixed windows of chunkSize runes that
// overlap by overlap runes. Offsets refer to the normalized text.
func ChunkText(text string, chunkSize, overlap int) []Span {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(NormalizeWhitespace(text))
	step := chunkSize - overlap
	out := make([]Span, 0, len(runes)/step+1)
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, Span{Text: part, Start: i, End: end})
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
