package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/easybook-dev/easybook/internal/catalog"
	"github.com/easybook-dev/easybook/internal/stats"
	"github.com/easybook-dev/easybook/internal/store"
	apperrors "github.com/easybook-dev/easybook/pkg/errors"
	"github.com/easybook-dev/easybook/pkg/metrics"
	"github.com/easybook-dev/easybook/pkg/resilience"
)

// Request is one search invocation. Either Term is set (free text, matched
// against title OR author) or Title/Author are set (field search, combined
// with AND). The request layer validates inputs before they reach here.
type Request struct {
	Term     string
	Title    string
	Author   string
	Page     int
	PageSize int
	ClientID string
}

// StatsRecorder receives usage data for every served query and reports the
// aggregate counters on demand.
type StatsRecorder interface {
	RecordSearch(term string, elapsedSeconds float64, clientID string)
	Snapshot() stats.Snapshot
}

// GatewaySelector supplies the download-endpoint host used when building
// result URLs. SelectBest returns "" only when no endpoint is configured.
type GatewaySelector interface {
	SelectBest(ctx context.Context) string
	BuildDownloadURL(cid, host string) string
}

// EventTracker exports search events; Track must never block.
type EventTracker interface {
	Track(event any)
}

// SearchEvent is the exported record of one executed (uncached) search.
type SearchEvent struct {
	Term      string    `json:"term"`
	TotalRaw  int       `json:"total_raw"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// Options bundles the orchestrator knobs that come from configuration.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FetchWindow is how many raw records are pulled from the store before
	// in-memory ranking; pages past the window degrade gracefully.
	FetchWindow  int
	QueryTimeout time.Duration
}

// Orchestrator coordinates one query end to end: cache lookup, record fetch,
// grouping, ranking, pagination, cache write, and stats recording.
type Orchestrator struct {
	store    store.RecordStore
	cache    *Cache
	stats    StatsRecorder
	gateways GatewaySelector
	events   EventTracker
	metrics  *metrics.Metrics
	breaker  *resilience.CircuitBreaker
	opts     Options
	group    singleflight.Group
	logger   *slog.Logger
}

// NewOrchestrator wires the search pipeline. stats, gateways, events, and m
// may be nil; the corresponding steps are skipped.
func NewOrchestrator(
	rs store.RecordStore,
	cache *Cache,
	stats StatsRecorder,
	gateways GatewaySelector,
	events EventTracker,
	m *metrics.Metrics,
	opts Options,
) *Orchestrator {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.FetchWindow < opts.MaxPageSize {
		opts.FetchWindow = opts.MaxPageSize
	}
	return &Orchestrator{
		store:    rs,
		cache:    cache,
		stats:    stats,
		gateways: gateways,
		events:   events,
		metrics:  m,
		breaker: resilience.NewCircuitBreaker("record-store", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
		}),
		opts:   opts,
		logger: slog.Default().With("component", "search-orchestrator"),
	}
}

// Search serves one query. Cache hits return immediately; misses run the
// fetch/group/rank/slice pipeline and populate the cache. A backend outage
// surfaces as ErrBackendUnavailable, never as an empty result.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*catalog.SearchResponse, error) {
	req = o.normalize(req)
	if req.Term == "" && req.Title == "" && req.Author == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "empty query")
	}

	start := time.Now()
	sig := o.signature(req)

	if data, ok := o.cache.Get(sig); ok {
		var resp catalog.SearchResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			o.observe(req, &resp, start, true)
			return &resp, nil
		}
		// A corrupt entry behaves like a miss and gets overwritten below.
		o.logger.Error("cache entry unmarshal failed", "signature", sig)
	}

	data, err, _ := o.group.Do(sig, func() (any, error) {
		if cached, ok := o.cache.Get(sig); ok {
			return cached, nil
		}
		resp, err := o.execute(ctx, req)
		if err != nil {
			return nil, err
		}
		serialized, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("serializing response: %w", err)
		}
		o.cache.Put(sig, serialized)
		return serialized, nil
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		o.logger.Error("search failed",
			"term", o.effectiveTerm(req),
			"page", req.Page,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	var resp catalog.SearchResponse
	if err := json.Unmarshal(data.([]byte), &resp); err != nil {
		return nil, fmt.Errorf("deserializing response: %w", err)
	}
	o.observe(req, &resp, start, false)
	return &resp, nil
}

// execute runs the miss path: bounded fetch window, in-memory grouping and
// ranking, then the page slice.
func (o *Orchestrator) execute(ctx context.Context, req Request) (*catalog.SearchResponse, error) {
	query := store.Query{
		Term:   req.Term,
		Title:  req.Title,
		Author: req.Author,
		Limit:  o.opts.FetchWindow,
	}

	var records []catalog.Record
	var total int
	err := o.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, o.opts.QueryTimeout, "record-store query", func(ctx context.Context) error {
			var qErr error
			records, total, qErr = o.store.Query(ctx, query)
			return qErr
		})
	})
	if err != nil {
		if apperrors.HTTPStatusCode(err) == 503 {
			return nil, err
		}
		// Open breaker and timeouts degrade to the same retryable signal.
		return nil, apperrors.Newf(apperrors.ErrBackendUnavailable, 503,
			"record store query failed: %v", err)
	}

	grouped := Group(records)
	Rank(grouped, o.effectiveTerm(req))
	page := Page(grouped, req.Page, req.PageSize)
	o.fillDownloadURLs(ctx, page, records)

	return &catalog.SearchResponse{
		Results:    page,
		TotalRaw:   total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalBooks: len(grouped),
	}, nil
}

// fillDownloadURLs resolves the current best gateway once per response and
// composes a URL for every variant that has a content address.
func (o *Orchestrator) fillDownloadURLs(ctx context.Context, page []catalog.GroupedResult, records []catalog.Record) {
	if o.gateways == nil {
		return
	}
	best := o.gateways.SelectBest(ctx)
	if best == "" {
		return
	}
	cidByMD5 := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.IPFSCID != "" {
			cidByMD5[rec.MD5] = rec.IPFSCID
		}
	}
	for i := range page {
		for j := range page[i].Formats {
			if cid, ok := cidByMD5[page[i].Formats[j].MD5]; ok {
				page[i].Formats[j].DownloadURL = o.gateways.BuildDownloadURL(cid, best)
			}
		}
	}
}

func (o *Orchestrator) observe(req Request, resp *catalog.SearchResponse, start time.Time, cacheHit bool) {
	elapsed := time.Since(start)
	term := o.effectiveTerm(req)

	if o.stats != nil {
		o.stats.RecordSearch(term, elapsed.Seconds(), req.ClientID)
	}
	if o.metrics != nil {
		outcome := "miss"
		cacheStatus := "miss"
		if cacheHit {
			outcome = "hit"
			cacheStatus = "hit"
		} else if resp.TotalRaw == 0 {
			outcome = "zero_result"
		}
		o.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
		o.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
		o.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
		if cacheHit {
			o.metrics.CacheHitsTotal.Inc()
		} else {
			o.metrics.CacheMissesTotal.Inc()
		}
		o.metrics.CacheEntries.Set(float64(o.cache.Stats().Size))
	}
	if o.events != nil {
		o.events.Track(SearchEvent{
			Term:      term,
			TotalRaw:  resp.TotalRaw,
			Returned:  len(resp.Results),
			LatencyMs: elapsed.Milliseconds(),
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
		})
	}
	o.logger.Info("search served",
		"term", term,
		"page", resp.Page,
		"total_raw", resp.TotalRaw,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"elapsed", elapsed,
	)
}

func (o *Orchestrator) normalize(req Request) Request {
	req.Term = strings.TrimSpace(req.Term)
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = o.opts.DefaultPageSize
	}
	if req.PageSize > o.opts.MaxPageSize {
		req.PageSize = o.opts.MaxPageSize
	}
	return req
}

// effectiveTerm is the term relevance is ranked against: the title term when
// field search is used, otherwise the free-text term.
func (o *Orchestrator) effectiveTerm(req Request) string {
	if req.Term != "" {
		return req.Term
	}
	if req.Title != "" {
		return req.Title
	}
	return req.Author
}

func (o *Orchestrator) signature(req Request) string {
	if req.Term != "" {
		return Signature("ft", req.Term, "", req.Page, req.PageSize)
	}
	return Signature("fields", req.Title, req.Author, req.Page, req.PageSize)
}

// CacheStats exposes response-cache counters to the admin surface.
func (o *Orchestrator) CacheStats() CacheStats {
	return o.cache.Stats()
}

// CacheClear empties the response cache and resets its counters.
func (o *Orchestrator) CacheClear() {
	o.cache.Clear()
}

// StatsSnapshot exposes the aggregate usage counters to the admin surface.
func (o *Orchestrator) StatsSnapshot() stats.Snapshot {
	if o.stats == nil {
		return stats.Snapshot{}
	}
	return o.stats.Snapshot()
}
