package searcher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SnippetMaxChars bounds the snippet returned with each search result.
const SnippetMaxChars = 240

// makeSnippet extracts a bounded window of chunk content centered on the
// first occurrence of any query term. Truncated edges are marked with an
// ellipsis. With no term match the snippet is the head of the content.
func makeSnippet(content string, terms []string) string {
	runes := []rune(content)
	if len(runes) <= SnippetMaxChars {
		return content
	}

	center := firstMatch(content, terms)

	start := center - SnippetMaxChars/2
	if start < 0 {
		start = 0
	}
	end := start + SnippetMaxChars
	if end > len(runes) {
		end = len(runes)
		start = end - SnippetMaxChars
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet = snippet + "…"
	}
	return snippet
}

// firstMatch returns the rune offset of the earliest case-insensitive
// occurrence of any term, or 0 when nothing matches. Lowercasing can
// change byte lengths but maps rune to rune, so the rune count into the
// lowered string is also the offset into the original.
func firstMatch(content string, terms []string) int {
	lower := strings.ToLower(content)
	best := -1
	for _, t := range terms {
		t = strings.ToLower(strings.TrimFunc(t, unicode.IsSpace))
		if t == "" {
			continue
		}
		if idx := strings.Index(lower, t); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return 0
	}
	return utf8.RuneCountInString(lower[:best])
}
