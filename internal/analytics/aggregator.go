package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/calebmur/docfind/pkg/kafka"
)

// Stats is a point-in-time summary of search activity.
type Stats struct {
	TotalRuns         int64        `json:"total_runs"`
	AbortedRuns       int64        `json:"aborted_runs"`
	ZeroResultRuns    int64        `json:"zero_result_runs"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	DocumentsAdded    int64        `json:"documents_added"`
	DocumentsDeleted  int64        `json:"documents_deleted"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	RunsPerMinute     float64      `json:"runs_per_minute"`
}

// QueryCount pairs a raw query with how often it was run.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator consumes analytics events and keeps rolling statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalRuns         int64
	abortedRuns       int64
	zeroResultRuns    int64
	cacheHits         int64
	cacheMisses       int64
	documentsAdded    int64
	documentsDeleted  int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator fed by the given consumer. A nil
// consumer is allowed for direct-feed use in tests and embedded setups.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 4096),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start begins consuming events. It blocks until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// Handler returns the kafka message handler that feeds this aggregator.
// Undecodable events are logged and skipped, never retried.
func (a *Aggregator) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		switch string(key) {
		case "search_run":
			event, err := kafka.DecodeJSON[SearchRunEvent](value)
			if err != nil {
				a.logger.Error("undecodable search run event", "error", err)
				return nil
			}
			a.RecordSearchRun(event)
		case "document":
			event, err := kafka.DecodeJSON[DocumentEvent](value)
			if err != nil {
				a.logger.Error("undecodable document event", "error", err)
				return nil
			}
			a.RecordDocument(event)
		default:
			a.logger.Warn("unknown analytics event key", "key", string(key))
		}
		return nil
	}
}

// RecordSearchRun folds one search run into the statistics.
func (a *Aggregator) RecordSearchRun(event SearchRunEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRuns++
	if event.Aborted {
		a.abortedRuns++
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.MatchedItems == 0 && !event.Aborted {
		a.zeroResultRuns++
		a.zeroResultQueries[event.Query]++
	}
}

// RecordDocument folds one document change into the statistics.
func (a *Aggregator) RecordDocument(event DocumentEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Action {
	case DocumentAdded:
		a.documentsAdded++
	case DocumentDeleted:
		a.documentsDeleted++
	}
}

// Stats computes a snapshot of the current statistics.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalRuns:        a.totalRuns,
		AbortedRuns:      a.abortedRuns,
		ZeroResultRuns:   a.zeroResultRuns,
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		DocumentsAdded:   a.documentsAdded,
		DocumentsDeleted: a.documentsDeleted,
	}

	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}

	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, count := range counts {
		result = append(result, QueryCount{Query: q, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
