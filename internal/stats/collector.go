// Package stats collects usage statistics: query volume, per-term frequency,
// response latency, and page-view/visitor counters. State is periodically
// persisted through a SnapshotStore and reloaded at startup.
package stats

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxResponseTimes = 1000
	maxSearchTerms   = 100
	hourlyRetention  = 7 * 24 // hour buckets kept
	topTermsReturned = 20
)

const (
	hourKeyLayout = "2006-01-02T15"
	dayKeyLayout  = "2006-01-02"
)

// TermCount is one entry of the most-frequent-terms table.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// BucketCount is one hourly or daily page-view bucket.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// Snapshot is the read-only aggregate view returned to callers.
type Snapshot struct {
	SearchCount     int64         `json:"search_count"`
	TopSearchTerms  []TermCount   `json:"top_search_terms"`
	AvgResponseTime float64       `json:"avg_response_time"`
	TotalPV         int64         `json:"total_pv"`
	UniqueVisitors  int           `json:"unique_visitors"`
	HourlyPV        []BucketCount `json:"hourly_pv"`
	DailyPV         []BucketCount `json:"daily_pv"`
}

// Collector accumulates usage statistics behind its own lock, independent of
// the response cache, so stats recording never contends with cache access.
type Collector struct {
	mu          sync.Mutex
	searchCount int64
	searchTerms map[string]int64
	// latency ring buffer; ringFull marks the first wrap-around
	ring     [maxResponseTimes]float64
	ringNext int
	ringFull bool
	hourlyPV map[string]int64
	dailyPV  map[string]int64
	visitors map[string]struct{}
	totalPV  int64

	now    func() time.Time
	logger *slog.Logger
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		searchTerms: make(map[string]int64),
		hourlyPV:    make(map[string]int64),
		dailyPV:     make(map[string]int64),
		visitors:    make(map[string]struct{}),
		now:         time.Now,
		logger:      slog.Default().With("component", "stats"),
	}
}

// RecordSearch registers one served query: total count, term frequency,
// response latency, and the visitor identity.
func (c *Collector) RecordSearch(term string, elapsedSeconds float64, clientID string) {
	term = strings.ToLower(strings.TrimSpace(term))
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searchCount++
	c.searchTerms[term]++
	// Trim lazily: let the table grow to twice the cap, then keep the top.
	if len(c.searchTerms) > maxSearchTerms*2 {
		c.searchTerms = topTermsMap(c.searchTerms, maxSearchTerms)
	}
	c.ring[c.ringNext] = elapsedSeconds
	c.ringNext++
	if c.ringNext == maxResponseTimes {
		c.ringNext = 0
		c.ringFull = true
	}
	if clientID != "" {
		c.visitors[clientID] = struct{}{}
	}
}

// RecordRequest registers one page view: total counter, the current hour and
// day buckets, and the visitor identity. Hour buckets older than the
// retention window are pruned.
func (c *Collector) RecordRequest(clientID string) {
	now := c.now().UTC()
	hourKey := now.Format(hourKeyLayout)
	dayKey := now.Format(dayKeyLayout)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalPV++
	c.hourlyPV[hourKey]++
	c.dailyPV[dayKey]++
	if clientID != "" {
		c.visitors[clientID] = struct{}{}
	}
	c.pruneHourlyLocked()
}

// pruneHourlyLocked drops the oldest hour buckets beyond the retention
// window. Keys sort chronologically because of the fixed layout.
func (c *Collector) pruneHourlyLocked() {
	excess := len(c.hourlyPV) - hourlyRetention
	if excess <= 0 {
		return
	}
	keys := make([]string, 0, len(c.hourlyPV))
	for k := range c.hourlyPV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:excess] {
		delete(c.hourlyPV, k)
	}
}

// Snapshot returns the aggregate counters: top-20 terms, ring average (0 when
// empty), last-24-hours hourly series, and last-7-days daily series.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SearchCount:    c.searchCount,
		TopSearchTerms: topTerms(c.searchTerms, topTermsReturned),
		TotalPV:        c.totalPV,
		UniqueVisitors: len(c.visitors),
		HourlyPV:       lastBuckets(c.hourlyPV, 24),
		DailyPV:        lastBuckets(c.dailyPV, 7),
	}

	n := c.ringNext
	if c.ringFull {
		n = maxResponseTimes
	}
	if n > 0 {
		var sum float64
		for i := 0; i < n; i++ {
			sum += c.ring[i]
		}
		snap.AvgResponseTime = sum / float64(n)
	}
	return snap
}

func topTerms(counts map[string]int64, n int) []TermCount {
	terms := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		terms = append(terms, TermCount{Term: term, Count: count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func topTermsMap(counts map[string]int64, n int) map[string]int64 {
	trimmed := make(map[string]int64, n)
	for _, tc := range topTerms(counts, n) {
		trimmed[tc.Term] = tc.Count
	}
	return trimmed
}

func lastBuckets(buckets map[string]int64, n int) []BucketCount {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	series := make([]BucketCount, 0, len(keys))
	for _, k := range keys {
		series = append(series, BucketCount{Bucket: k, Count: buckets[k]})
	}
	return series
}
