package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easybook-dev/easybook/internal/catalog"
	"github.com/easybook-dev/easybook/internal/stats"
	"github.com/easybook-dev/easybook/internal/store"
	apperrors "github.com/easybook-dev/easybook/pkg/errors"
)

type fakeStore struct {
	records []catalog.Record
	err     error
	queries atomic.Int64
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	return len(f.records), nil
}

func (f *fakeStore) Query(ctx context.Context, q store.Query) ([]catalog.Record, int, error) {
	f.queries.Add(1)
	if f.err != nil {
		return nil, 0, f.err
	}
	matched := make([]catalog.Record, 0)
	for _, rec := range f.records {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	total := len(matched)
	if q.Offset < len(matched) {
		matched = matched[q.Offset:]
	} else {
		matched = nil
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func matches(rec catalog.Record, q store.Query) bool {
	title := strings.ToLower(rec.Title)
	author := strings.ToLower(rec.Author)
	if q.FreeText() {
		term := strings.ToLower(q.Term)
		return strings.Contains(title, term) || strings.Contains(author, term)
	}
	if q.Title != "" && !strings.Contains(title, strings.ToLower(q.Title)) {
		return false
	}
	if q.Author != "" && !strings.Contains(author, strings.ToLower(q.Author)) {
		return false
	}
	return true
}

type fakeSelector struct{ host string }

func (s fakeSelector) SelectBest(ctx context.Context) string { return s.host }
func (s fakeSelector) BuildDownloadURL(cid, host string) string {
	return "https://" + host + "/ipfs/" + cid
}

type fakeRecorder struct {
	searches atomic.Int64
	lastTerm atomic.Value
}

func (r *fakeRecorder) RecordSearch(term string, elapsedSeconds float64, clientID string) {
	r.searches.Add(1)
	r.lastTerm.Store(term)
}

func (r *fakeRecorder) Snapshot() stats.Snapshot {
	return stats.Snapshot{SearchCount: r.searches.Load()}
}

func newTestOrchestrator(t *testing.T, fs *fakeStore) *Orchestrator {
	t.Helper()
	return NewOrchestrator(fs, NewCache(100), &fakeRecorder{}, fakeSelector{host: "gw.test"}, nil, nil, Options{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		FetchWindow:     200,
		QueryTimeout:    time.Second,
	})
}

func TestSearchMergesFormatsEndToEnd(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{
		{MD5: "m1", Title: "Atlas", Author: "Smith", Extension: "epub", Filesize: 2 << 20, IPFSCID: "cid1"},
		{MD5: "m2", Title: "Atlas", Author: "Smith", Extension: "pdf", Filesize: 4 << 20, IPFSCID: "cid2"},
	}}
	o := newTestOrchestrator(t, fs)

	resp, err := o.Search(context.Background(), Request{Term: "Atlas"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.TotalRaw != 2 {
		t.Errorf("totalRaw = %d, want 2", resp.TotalRaw)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 grouped result, got %d", len(resp.Results))
	}
	formats := resp.Results[0].Formats
	if len(formats) != 2 {
		t.Fatalf("expected 2 formats, got %d", len(formats))
	}
	extensions := map[string]bool{}
	for _, f := range formats {
		extensions[f.Extension] = true
		if f.DownloadURL == "" {
			t.Errorf("format %s missing download URL", f.Extension)
		}
	}
	if !extensions["epub"] || !extensions["pdf"] {
		t.Errorf("expected extensions {epub, pdf}, got %v", extensions)
	}
	if formats[0].DownloadURL != "https://gw.test/ipfs/cid1" {
		t.Errorf("unexpected download URL %q", formats[0].DownloadURL)
	}
}

func TestSearchZeroMatchesIsNotAnError(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{
		{MD5: "m1", Title: "Atlas", Extension: "epub"},
	}}
	o := newTestOrchestrator(t, fs)

	resp, err := o.Search(context.Background(), Request{Term: "nonexistent"})
	if err != nil {
		t.Fatalf("zero matches must not be an error: %v", err)
	}
	if resp.TotalRaw != 0 {
		t.Errorf("totalRaw = %d, want 0", resp.TotalRaw)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected empty result list, got %d entries", len(resp.Results))
	}
}

func TestSearchBackendUnavailablePropagates(t *testing.T) {
	fs := &fakeStore{err: apperrors.New(apperrors.ErrBackendUnavailable, 503, "store down")}
	o := newTestOrchestrator(t, fs)

	_, err := o.Search(context.Background(), Request{Term: "atlas"})
	if err == nil {
		t.Fatal("expected an error when the backend is down")
	}
	if !errors.Is(err, apperrors.ErrBackendUnavailable) {
		t.Errorf("error should wrap ErrBackendUnavailable, got %v", err)
	}
	if code := apperrors.HTTPStatusCode(err); code != 503 {
		t.Errorf("status code = %d, want 503", code)
	}
}

func TestSearchCachesResponses(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{
		{MD5: "m1", Title: "Atlas", Extension: "epub"},
	}}
	o := newTestOrchestrator(t, fs)

	req := Request{Term: "atlas", Page: 1, PageSize: 20}
	first, err := o.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if got := fs.queries.Load(); got != 1 {
		t.Errorf("store queried %d times, want 1 (second call served from cache)", got)
	}
	if first.TotalRaw != second.TotalRaw || len(first.Results) != len(second.Results) {
		t.Error("cached response differs from computed response")
	}
	if cs := o.CacheStats(); cs.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", cs.Hits)
	}
	// Both the computed and the cached response are recorded.
	if snap := o.StatsSnapshot(); snap.SearchCount != 2 {
		t.Errorf("recorded searches = %d, want 2", snap.SearchCount)
	}
}

func TestSearchCacheClearForcesRecompute(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{{MD5: "m1", Title: "Atlas", Extension: "epub"}}}
	o := newTestOrchestrator(t, fs)

	req := Request{Term: "atlas"}
	if _, err := o.Search(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	o.CacheClear()
	if _, err := o.Search(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := fs.queries.Load(); got != 2 {
		t.Errorf("store queried %d times, want 2 after cache clear", got)
	}
}

func TestSearchFieldModeCombinesTitleAndAuthor(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{
		{MD5: "1", Title: "Go Basics", Author: "Smith", Extension: "epub"},
		{MD5: "2", Title: "Go Basics", Author: "Jones", Extension: "epub"},
	}}
	o := newTestOrchestrator(t, fs)

	resp, err := o.Search(context.Background(), Request{Title: "go", Author: "jones"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalRaw != 1 {
		t.Errorf("totalRaw = %d, want 1 (AND of title and author)", resp.TotalRaw)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(t, &fakeStore{})
	_, err := o.Search(context.Background(), Request{Term: "   "})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchClampsPageSize(t *testing.T) {
	fs := &fakeStore{records: []catalog.Record{{MD5: "1", Title: "Atlas", Extension: "epub"}}}
	o := newTestOrchestrator(t, fs)

	resp, err := o.Search(context.Background(), Request{Term: "atlas", PageSize: 10000})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PageSize != 100 {
		t.Errorf("pageSize = %d, want clamped to 100", resp.PageSize)
	}
}
