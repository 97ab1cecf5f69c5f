package analytics

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestAggregatorCounts(t *testing.T) {
	agg := NewAggregator(nil)

	agg.RecordSearchRun(SearchRunEvent{Query: "dog", MatchedItems: 2, LatencyMs: 10})
	agg.RecordSearchRun(SearchRunEvent{Query: "dog", MatchedItems: 0, LatencyMs: 20})
	agg.RecordSearchRun(SearchRunEvent{Query: "cat", MatchedItems: 1, LatencyMs: 30, CacheHit: true})
	agg.RecordSearchRun(SearchRunEvent{Query: "bird", Aborted: true, LatencyMs: 5})
	agg.RecordDocument(DocumentEvent{Action: DocumentAdded, DocumentID: "d1"})
	agg.RecordDocument(DocumentEvent{Action: DocumentDeleted, DocumentID: "d1"})

	stats := agg.Stats()
	if stats.TotalRuns != 4 {
		t.Errorf("TotalRuns = %d, want 4", stats.TotalRuns)
	}
	if stats.AbortedRuns != 1 {
		t.Errorf("AbortedRuns = %d, want 1", stats.AbortedRuns)
	}
	if stats.ZeroResultRuns != 1 {
		t.Errorf("ZeroResultRuns = %d, want 1", stats.ZeroResultRuns)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 3 {
		t.Errorf("cache hits/misses = %d/%d, want 1/3", stats.CacheHits, stats.CacheMisses)
	}
	if stats.DocumentsAdded != 1 || stats.DocumentsDeleted != 1 {
		t.Errorf("documents added/deleted = %d/%d, want 1/1", stats.DocumentsAdded, stats.DocumentsDeleted)
	}
}

func TestAggregatorZeroResultExcludesAborted(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordSearchRun(SearchRunEvent{Query: "bird", Aborted: true, MatchedItems: 0})

	stats := agg.Stats()
	if stats.ZeroResultRuns != 0 {
		t.Errorf("aborted run counted as zero-result: ZeroResultRuns = %d", stats.ZeroResultRuns)
	}
}

func TestAggregatorTopQueries(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < 3; i++ {
		agg.RecordSearchRun(SearchRunEvent{Query: "dog", MatchedItems: 1})
	}
	agg.RecordSearchRun(SearchRunEvent{Query: "cat", MatchedItems: 1})

	top := agg.Stats().TopQueries
	if len(top) != 2 {
		t.Fatalf("got %d top queries, want 2", len(top))
	}
	if top[0].Query != "dog" || top[0].Count != 3 {
		t.Errorf("top[0] = %+v, want {dog 3}", top[0])
	}
}

func TestAggregatorLatencyPercentiles(t *testing.T) {
	agg := NewAggregator(nil)
	for ms := int64(1); ms <= 100; ms++ {
		agg.RecordSearchRun(SearchRunEvent{Query: "q", MatchedItems: 1, LatencyMs: ms})
	}

	stats := agg.Stats()
	if stats.P50LatencyMs != 51 {
		t.Errorf("P50 = %d, want 51", stats.P50LatencyMs)
	}
	if stats.P95LatencyMs != 96 {
		t.Errorf("P95 = %d, want 96", stats.P95LatencyMs)
	}
	if stats.P99LatencyMs != 100 {
		t.Errorf("P99 = %d, want 100", stats.P99LatencyMs)
	}
	if stats.AvgLatencyMs != 50.5 {
		t.Errorf("Avg = %v, want 50.5", stats.AvgLatencyMs)
	}
}

func TestHandlerRoutesEventsByKey(t *testing.T) {
	agg := NewAggregator(nil)
	handle := agg.Handler()

	run, _ := json.Marshal(SearchRunEvent{Query: "dog", MatchedItems: 1, LatencyMs: 7})
	if err := handle(context.Background(), []byte("search_run"), run); err != nil {
		t.Fatalf("handle search_run: %v", err)
	}
	doc, _ := json.Marshal(DocumentEvent{Action: DocumentAdded, DocumentID: "d1"})
	if err := handle(context.Background(), []byte("document"), doc); err != nil {
		t.Fatalf("handle document: %v", err)
	}
	if err := handle(context.Background(), []byte("search_run"), []byte("not json")); err != nil {
		t.Errorf("undecodable event should be skipped, got error: %v", err)
	}

	stats := agg.Stats()
	if stats.TotalRuns != 1 || stats.DocumentsAdded != 1 {
		t.Errorf("stats = %+v, want 1 run and 1 added document", stats)
	}
}

func TestStatsEndpoint(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordSearchRun(SearchRunEvent{Query: "dog", MatchedItems: 1, LatencyMs: 12})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.TotalRuns != 1 {
		t.Errorf("TotalRuns = %d, want 1", stats.TotalRuns)
	}
}
