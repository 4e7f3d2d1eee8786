package search

import (
	"testing"

	"github.com/easybook-dev/easybook/internal/catalog"
)

func TestGroupMergesSameWork(t *testing.T) {
	records := []catalog.Record{
		{MD5: "a1", Title: "Atlas", Author: "Smith", Extension: "epub", Filesize: 2 << 20},
		{MD5: "a2", Title: "Atlas", Author: "Smith", Extension: "pdf", Filesize: 4 << 20},
		{MD5: "b1", Title: "Other Book", Author: "Jones", Extension: "epub"},
	}

	grouped := Group(records)

	if len(grouped) != 2 {
		t.Fatalf("expected 2 grouped results, got %d", len(grouped))
	}
	atlas := grouped[0]
	if atlas.ID != "a1" {
		t.Errorf("representative identity should be first-seen md5, got %q", atlas.ID)
	}
	if len(atlas.Formats) != 2 {
		t.Fatalf("expected 2 formats for Atlas, got %d", len(atlas.Formats))
	}
	extensions := map[string]bool{}
	for _, f := range atlas.Formats {
		extensions[f.Extension] = true
	}
	if !extensions["epub"] || !extensions["pdf"] {
		t.Errorf("expected extensions {epub, pdf}, got %v", extensions)
	}
}

func TestGroupKeyIsCaseAndSpaceInsensitive(t *testing.T) {
	records := []catalog.Record{
		{MD5: "1", Title: "Dune", Author: "Herbert", Extension: "epub"},
		{MD5: "2", Title: "  dune ", Author: "HERBERT", Extension: "mobi"},
	}

	grouped := Group(records)
	if len(grouped) != 1 {
		t.Fatalf("expected case-insensitive merge into 1 result, got %d", len(grouped))
	}
	if grouped[0].Title != "Dune" {
		t.Errorf("first record should seed the title, got %q", grouped[0].Title)
	}
}

func TestGroupEveryRecordAppearsExactlyOnce(t *testing.T) {
	records := []catalog.Record{
		{MD5: "1", Title: "A", Author: "x", Extension: "epub"},
		{MD5: "2", Title: "B", Author: "y", Extension: "pdf"},
		{MD5: "3", Title: "A", Author: "x", Extension: "mobi"},
		{MD5: "4", Title: "", Author: "", Extension: "pdf"},
		{MD5: "5", Title: " ", Author: "", Extension: "epub"},
	}

	grouped := Group(records)

	seen := map[string]int{}
	for _, g := range grouped {
		for _, f := range g.Formats {
			seen[f.MD5]++
		}
	}
	if len(seen) != len(records) {
		t.Fatalf("expected all %d records distributed, got %d", len(records), len(seen))
	}
	for md5, n := range seen {
		if n != 1 {
			t.Errorf("record %s appears %d times, want exactly once", md5, n)
		}
	}

	// No two grouped results may share a merge key.
	keys := map[mergeKey]bool{}
	for _, g := range grouped {
		key := keyFor(catalog.Record{Title: g.Title, Author: g.Author})
		if keys[key] {
			t.Errorf("duplicate merge key %v in output", key)
		}
		keys[key] = true
	}
}

func TestGroupBlankTitleAndAuthorCollapseTogether(t *testing.T) {
	records := []catalog.Record{
		{MD5: "1", Title: "", Author: "", Extension: "pdf"},
		{MD5: "2", Title: "  ", Author: " ", Extension: "epub"},
	}
	grouped := Group(records)
	if len(grouped) != 1 {
		t.Fatalf("blank records should collapse into one group, got %d", len(grouped))
	}
}

func TestGroupPreservesFirstSeenOrder(t *testing.T) {
	records := []catalog.Record{
		{MD5: "1", Title: "Zebra", Extension: "epub"},
		{MD5: "2", Title: "Apple", Extension: "epub"},
		{MD5: "3", Title: "Zebra", Extension: "pdf"},
	}
	grouped := Group(records)
	if grouped[0].Title != "Zebra" || grouped[1].Title != "Apple" {
		t.Errorf("grouped order should follow first appearance, got %q then %q",
			grouped[0].Title, grouped[1].Title)
	}
}
