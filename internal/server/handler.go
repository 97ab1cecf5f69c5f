// Package server implements the HTTP API: search runs, document
// management, and cache administration.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calebmur/docfind/internal/analytics"
	"github.com/calebmur/docfind/internal/library"
	"github.com/calebmur/docfind/internal/query"
	"github.com/calebmur/docfind/internal/search"
	"github.com/calebmur/docfind/internal/search/cache"
	"github.com/calebmur/docfind/internal/search/matcher"
	"github.com/calebmur/docfind/pkg/config"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
	"github.com/calebmur/docfind/pkg/logger"
	"github.com/calebmur/docfind/pkg/metrics"
	"github.com/calebmur/docfind/pkg/middleware"
	"github.com/calebmur/docfind/pkg/tracing"
)

// Handler implements the service's HTTP endpoints. Cache, collector, and
// metrics are optional; a nil value disables that concern.
type Handler struct {
	store     library.Store
	matcher   *matcher.Matcher
	cache     *cache.Cache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	searchCfg config.SearchConfig
	logger    *slog.Logger
}

func New(store library.Store, m *matcher.Matcher, c *cache.Cache, collector *analytics.Collector, mx *metrics.Metrics, searchCfg config.SearchConfig) *Handler {
	return &Handler{
		store:     store,
		matcher:   m,
		cache:     c,
		collector: collector,
		metrics:   mx,
		searchCfg: searchCfg,
		logger:    slog.Default().With("component", "http-handler"),
	}
}

// Routes registers all API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/documents", h.CreateDocument)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// SearchResponse is the payload returned by the search endpoint.
type SearchResponse struct {
	Query        string              `json:"query"`
	Results      []cache.ResultEntry `json:"results"`
	MaxWeight    float64             `json:"max_weight"`
	MatchedItems int                 `json:"matched_items"`
	TotalItems   int                 `json:"total_items"`
	CacheHit     bool                `json:"cache_hit"`
	LatencyMs    int64               `json:"latency_ms"`
}

// Search compiles the q parameter, runs it over every document in the
// library, and returns per-document matches with the highest weight seen.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	raw := r.URL.Query().Get("q")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(r))
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("query", raw)

	q := query.Compile(raw)
	if q.IsEmpty() {
		h.writeJSON(w, http.StatusOK, SearchResponse{
			Query:     raw,
			Results:   []cache.ResultEntry{},
			MaxWeight: search.NoMaxWeight,
		})
		return
	}

	listCtx, listSpan := tracing.StartChild(ctx, "list-documents")
	docs, err := h.store.List(listCtx)
	listSpan.End()
	if err != nil {
		log.Error("listing documents failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load documents")
		return
	}

	items := make([]search.Item, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		items[i] = doc
		ids[i] = doc.ID
	}

	entry, hit, err := h.lookupOrRun(ctx, raw, q, items, ids)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("search run aborted", "query", raw, "error", err)
		h.observeRun("aborted", hit, latencyMs, 0)
		h.trackRun(r, raw, q, len(items), 0, search.NoMaxWeight, latencyMs, hit, true)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	outcome := "completed"
	if len(entry.Results) == 0 {
		outcome = "zero_result"
	}
	h.observeRun(outcome, hit, latencyMs, len(entry.Results))
	h.trackRun(r, raw, q, len(items), len(entry.Results), entry.MaxWeight, latencyMs, hit, false)

	log.Info("search completed",
		"query", raw,
		"matched_items", len(entry.Results),
		"max_weight", entry.MaxWeight,
		"cache_hit", hit,
		"latency_ms", latencyMs,
	)

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:        raw,
		Results:      entry.Results,
		MaxWeight:    entry.MaxWeight,
		MatchedItems: len(entry.Results),
		TotalItems:   len(items),
		CacheHit:     hit,
		LatencyMs:    latencyMs,
	})
}

// lookupOrRun consults the result cache when one is configured, running
// the search on a miss.
func (h *Handler) lookupOrRun(ctx context.Context, raw string, q query.Query, items []search.Item, ids []string) (*cache.Entry, bool, error) {
	if h.cache == nil {
		entry, err := h.runSearch(ctx, raw, items)
		return entry, false, err
	}
	return h.cache.GetOrCompute(ctx, cache.Key(q, ids), func(ctx context.Context) (*cache.Entry, error) {
		return h.runSearch(ctx, raw, items)
	})
}

// runSearch drives one orchestrated run over items and converts the
// outcome into a cacheable entry.
func (h *Handler) runSearch(ctx context.Context, raw string, items []search.Item) (*cache.Entry, error) {
	ctx, span := tracing.StartChild(ctx, "search-run")
	defer span.End()

	fn := h.matcher.SearchFunc()
	if h.metrics != nil {
		base := fn
		fn = func(ctx context.Context, item search.Item, q query.Query) (search.ItemResult, error) {
			itemStart := time.Now()
			result, err := base(ctx, item, q)
			h.metrics.SearchItemDuration.Observe(time.Since(itemStart).Seconds())
			return result, err
		}
	}

	orch := search.New(raw).
		AddItems(items...).
		OnItem(fn).
		WithItemTimeout(h.searchCfg.ItemTimeout)
	if h.searchCfg.Concurrency > 1 {
		orch.WithConcurrency(h.searchCfg.Concurrency)
	}

	if err := orch.Start(ctx); err != nil {
		return nil, err
	}
	orch.Wait()
	if err := orch.Err(); err != nil {
		return nil, err
	}

	results := orch.Results()
	span.SetAttr("matched_items", len(results))

	entry := &cache.Entry{
		Query:     raw,
		Results:   make([]cache.ResultEntry, len(results)),
		MaxWeight: orch.MaxWeight(),
		CachedAt:  time.Now().UTC(),
	}
	for i, res := range results {
		entry.Results[i] = cache.ResultEntry{
			ItemID:      res.Item.SearchID(),
			Matches:     res.Matches,
			TotalWeight: res.TotalWeight(),
		}
	}
	return entry, nil
}

// ---------- Document handlers ----------

type createDocumentRequest struct {
	ID    string `json:"id,omitempty"`
	Path  string `json:"path"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateDocument adds a document to the library and invalidates cached
// search runs.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		h.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if req.ID == "" {
		req.ID = newDocumentID()
	}

	doc := library.Document{
		ID:        req.ID,
		Path:      req.Path,
		Title:     req.Title,
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Put(r.Context(), doc); err != nil {
		h.storeError(w, r, "storing document failed", err)
		return
	}

	h.invalidateCache(r)
	if h.metrics != nil {
		h.metrics.DocumentsTotal.Inc()
	}
	if h.collector != nil {
		h.collector.TrackDocument(analytics.DocumentEvent{
			Action:     analytics.DocumentAdded,
			DocumentID: doc.ID,
			SizeBytes:  len(doc.Body),
		})
	}

	h.writeJSON(w, http.StatusCreated, doc)
}

// GetDocument fetches one document by ID.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "fetching document failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns every document in library order.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.List(r.Context())
	if err != nil {
		h.storeError(w, r, "listing documents failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// DeleteDocument removes a document and invalidates cached search runs.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, "deleting document failed", err)
		return
	}

	h.invalidateCache(r)
	if h.metrics != nil {
		h.metrics.DocumentsTotal.Dec()
	}
	if h.collector != nil {
		h.collector.TrackDocument(analytics.DocumentEvent{
			Action:     analytics.DocumentDeleted,
			DocumentID: id,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// ---------- Cache handlers ----------

// CacheStats reports hit and miss counters for the result cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops all cached search runs.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	removed, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "invalidated",
		"removed": removed,
	})
}

// ---------- Helpers ----------

func (h *Handler) observeRun(outcome string, hit bool, latencyMs int64, matched int) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if hit {
		cacheStatus = "hit"
	}
	h.metrics.SearchRunsTotal.WithLabelValues(outcome).Inc()
	h.metrics.SearchRunDuration.WithLabelValues(cacheStatus).Observe(float64(latencyMs) / 1000)
	if outcome != "aborted" {
		h.metrics.SearchMatchedItems.Observe(float64(matched))
	}
}

func (h *Handler) trackRun(r *http.Request, raw string, q query.Query, totalItems, matched int, maxWeight float64, latencyMs int64, hit, aborted bool) {
	if h.collector == nil {
		return
	}
	h.collector.TrackSearchRun(analytics.SearchRunEvent{
		Query:        raw,
		Clauses:      len(q.Clauses),
		Items:        totalItems,
		MatchedItems: matched,
		MaxWeight:    maxWeight,
		LatencyMs:    latencyMs,
		CacheHit:     hit,
		Aborted:      aborted,
		RequestID:    middleware.GetRequestID(r),
	})
}

func (h *Handler) invalidateCache(r *http.Request) {
	if h.cache == nil {
		return
	}
	if _, err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Warn("cache invalidation after document change failed", "error", err)
	}
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error(msg, "error", err)
		h.writeError(w, status, msg)
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func newDocumentID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("doc-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
