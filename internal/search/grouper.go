package search

import (
	"strings"

	"github.com/easybook-dev/easybook/internal/catalog"
)

// mergeKey identifies a logical work: lowercased, whitespace-trimmed title
// and author. Records with blank title and author all share the empty key;
// blank titles are filtered by the import pipeline, not re-validated here.
type mergeKey struct {
	title  string
	author string
}

func keyFor(rec catalog.Record) mergeKey {
	return mergeKey{
		title:  strings.ToLower(strings.TrimSpace(rec.Title)),
		author: strings.ToLower(strings.TrimSpace(rec.Author)),
	}
}

// Group merges records that represent the same logical work into one result
// with multiple format variants. Input order is preserved: the first record
// under a key seeds the result's identity and title/author, and every record
// appends one format variant in order of appearance.
func Group(records []catalog.Record) []catalog.GroupedResult {
	order := make([]mergeKey, 0, len(records))
	byKey := make(map[mergeKey]*catalog.GroupedResult, len(records))

	for _, rec := range records {
		key := keyFor(rec)
		variant := catalog.FormatVariant{
			Extension: rec.Extension,
			Filesize:  rec.Filesize,
			MD5:       rec.MD5,
		}
		if existing, ok := byKey[key]; ok {
			existing.Formats = append(existing.Formats, variant)
			continue
		}
		author := strings.TrimSpace(rec.Author)
		byKey[key] = &catalog.GroupedResult{
			ID:      rec.MD5,
			Title:   strings.TrimSpace(rec.Title),
			Author:  author,
			Formats: []catalog.FormatVariant{variant},
		}
		order = append(order, key)
	}

	results := make([]catalog.GroupedResult, 0, len(order))
	for _, key := range order {
		results = append(results, *byKey[key])
	}
	return results
}
