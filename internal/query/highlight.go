package query

import (
	"strings"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
)

// fragmentSize bounds a highlight fragment's length, per §4.3.
const fragmentSize = 150

// maxFragments bounds how many fragments one field contributes.
const maxFragments = 3

// highlight re-runs a naive case-insensitive term scan of searchText
// against each requested field's stored value, wrapping matches with
// the configured tags and bounding each fragment to ~150 characters.
func highlight(doc docval.Document, searchText string, fields []string, preTag, postTag string) map[string][]string {
	if preTag == "" {
		preTag = "<em>"
	}
	if postTag == "" {
		postTag = "</em>"
	}

	terms := strings.Fields(searchText)
	out := make(map[string][]string, len(fields))
	for _, field := range fields {
		v, ok := doc[field]
		if !ok || v.Kind != docval.KindString {
			continue
		}
		fragments := fragmentsFor(v.Str, terms, preTag, postTag)
		if len(fragments) > 0 {
			out[field] = fragments
		}
	}
	return out
}

func fragmentsFor(text string, terms []string, preTag, postTag string) []string {
	lower := strings.ToLower(text)
	var fragments []string

	for _, term := range terms {
		if term == "" || term == "*" {
			continue
		}
		lowerTerm := strings.ToLower(term)
		start := 0
		for len(fragments) < maxFragments {
			idx := strings.Index(lower[start:], lowerTerm)
			if idx < 0 {
				break
			}
			matchStart := start + idx
			matchEnd := matchStart + len(lowerTerm)
			fragments = append(fragments, fragmentAround(text, matchStart, matchEnd, preTag, postTag))
			start = matchEnd
		}
		if len(fragments) >= maxFragments {
			break
		}
	}
	return fragments
}

func fragmentAround(text string, matchStart, matchEnd int, preTag, postTag string) string {
	pad := (fragmentSize - (matchEnd - matchStart)) / 2
	if pad < 0 {
		pad = 0
	}
	start := matchStart - pad
	if start < 0 {
		start = 0
	}
	end := matchEnd + pad
	if end > len(text) {
		end = len(text)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(text[start:matchStart])
	b.WriteString(preTag)
	b.WriteString(text[matchStart:matchEnd])
	b.WriteString(postTag)
	b.WriteString(text[matchEnd:end])
	if end < len(text) {
		b.WriteString("…")
	}
	return b.String()
}
