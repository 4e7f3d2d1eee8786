package search

import (
	"sort"
	"strings"

	"github.com/easybook-dev/easybook/internal/catalog"
)

// Relevance classes, best first: exact title match, title prefix, substring
// anywhere in the title, no title match (matched on author only).
const (
	rankExact = iota
	rankPrefix
	rankSubstring
	rankOther
)

func relevanceClass(title, term string) int {
	title = strings.ToLower(strings.TrimSpace(title))
	term = strings.ToLower(strings.TrimSpace(term))
	switch {
	case title == term:
		return rankExact
	case strings.HasPrefix(title, term):
		return rankPrefix
	case strings.Contains(title, term):
		return rankSubstring
	default:
		return rankOther
	}
}

// Rank orders grouped results by textual match quality against term:
// primary key relevance class ascending, secondary key title length
// ascending (shorter exact/prefix matches first). The sort is stable so
// remaining ties keep first-seen order.
func Rank(results []catalog.GroupedResult, term string) {
	sort.SliceStable(results, func(i, j int) bool {
		ci, cj := relevanceClass(results[i].Title, term), relevanceClass(results[j].Title, term)
		if ci != cj {
			return ci < cj
		}
		return len(results[i].Title) < len(results[j].Title)
	})
}

// Page slices one page out of the ranked result list. Pages past the end of
// the fetched window come back empty.
func Page(results []catalog.GroupedResult, page, pageSize int) []catalog.GroupedResult {
	start := (page - 1) * pageSize
	if start >= len(results) {
		return []catalog.GroupedResult{}
	}
	end := start + pageSize
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
