// Package analytics tracks search usage. Events flow from the service
// through Kafka into an Aggregator that keeps rolling statistics and can
// snapshot them to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventSearchRun EventType = "search_run"
	EventDocument  EventType = "document"
)

// SearchRunEvent describes one completed (or aborted) search run.
type SearchRunEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Clauses      int       `json:"clauses"`
	Items        int       `json:"items"`
	MatchedItems int       `json:"matched_items"`
	MaxWeight    float64   `json:"max_weight"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Aborted      bool      `json:"aborted"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// DocumentEvent records a change to the document library.
type DocumentEvent struct {
	Type       EventType `json:"type"`
	Action     string    `json:"action"`
	DocumentID string    `json:"document_id"`
	SizeBytes  int       `json:"size_bytes"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	DocumentAdded   = "added"
	DocumentDeleted = "deleted"
)
