// Package cache stores completed search run results in Redis keyed by the
// compiled query and the searched item set. Concurrent identical runs are
// collapsed through singleflight, and Redis access sits behind a circuit
// breaker so cache outages degrade to plain recomputation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/calebmur/docfind/internal/query"
	"github.com/calebmur/docfind/internal/search"
	"github.com/calebmur/docfind/pkg/redis"
	"github.com/calebmur/docfind/pkg/resilience"
)

const keyPrefix = "docfind:search:"

// ResultEntry is the cached form of one item's matches.
type ResultEntry struct {
	ItemID      string         `json:"item_id"`
	Matches     []search.Match `json:"matches"`
	TotalWeight float64        `json:"total_weight"`
}

// Entry is a cached search run.
type Entry struct {
	Query     string        `json:"query"`
	Results   []ResultEntry `json:"results"`
	MaxWeight float64       `json:"max_weight"`
	CachedAt  time.Time     `json:"cached_at"`
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a read-through result cache.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache with the given TTL. A non-positive TTL defaults to
// one minute.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("search-cache", resilience.BreakerConfig{}),
		logger:  slog.Default().With("component", "search-cache"),
	}
}

// Key derives a stable cache key from a compiled query and the IDs of the
// items it will run over. The query part is normalised so queries that
// compile identically share a key regardless of raw spelling.
func Key(q query.Query, itemIDs []string) string {
	h := sha256.New()
	h.Write([]byte(Normalise(q)))
	h.Write([]byte{0})
	for _, id := range itemIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// Normalise renders a compiled query in canonical text form, one clause
// per segment with its operator and words spelled out.
func Normalise(q query.Query) string {
	var b strings.Builder
	for i, c := range q.Clauses {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.Op.String())
		b.WriteByte('(')
		words := append([]string(nil), c.Words...)
		if c.Op == query.OpOr {
			sort.Strings(words)
		}
		b.WriteString(strings.Join(words, ","))
		b.WriteByte(')')
	}
	return b.String()
}

// GetOrCompute returns the cached entry for key, computing and storing it
// on a miss. The second return value reports whether the entry came from
// the cache. Cache failures are logged and fall through to compute.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (*Entry, error)) (*Entry, bool, error) {
	type cached struct {
		entry *Entry
		hit   bool
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if entry, ok := c.lookup(ctx, key); ok {
			c.hits.Add(1)
			return cached{entry, true}, nil
		}
		c.misses.Add(1)
		entry, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, entry)
		return cached{entry, false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(cached)
	return res.entry, res.hit, nil
}

// Invalidate removes all cached search runs, typically after the document
// set changes. It returns the number of keys removed.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	return c.client.FlushByPattern(ctx, keyPrefix+"*")
}

// Stats returns hit and miss counters since startup.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	if c.client == nil {
		return nil, false
	}
	var raw string
	var found bool
	err := c.breaker.Execute(func() error {
		v, err := c.client.Get(ctx, key)
		if err != nil {
			if redis.IsNilError(err) {
				return nil
			}
			return err
		}
		raw = v
		found = true
		return nil
	})
	if err != nil {
		c.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("corrupt cache entry dropped", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

func (c *Cache) store(ctx context.Context, key string, entry *Entry) {
	if c.client == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache entry marshal failed", "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, payload, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache store failed", "error", fmt.Errorf("set %s: %w", key, err))
	}
}
