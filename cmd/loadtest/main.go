// Command loadtest drives concurrent search traffic against a running
// docfind instance and reports throughput, latency distribution, and
// cache hit rate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var defaultQueries = []string{
	"incident report",
	`"big dog"`,
	"cat|dog",
	"quarterly budget review",
	"deploy|release notes",
	`"search orchestration"`,
	"timeout policy",
	"onboarding checklist",
	"postgres|redis outage",
	"meeting minutes",
}

type stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 1<<16),
		codes:     make(map[int]int64),
	}
}

func (s *stats) record(d time.Duration, code int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "docfind base URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queriesFlag := flag.String("queries", "", "comma-separated queries (defaults to a built-in mix)")
	flag.Parse()

	queries := defaultQueries
	if *queriesFlag != "" {
		queries = strings.Split(*queriesFlag, ",")
	}

	fmt.Printf("target %s, %d workers, %s, %d unique queries\n",
		*baseURL, *concurrency, *duration, len(queries))

	s := run(*baseURL, *concurrency, *duration, queries)
	report(s, *duration)
}

func run(baseURL string, concurrency int, duration time.Duration, queries []string) *stats {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				target := baseURL + "/api/v1/search?q=" + url.QueryEscape(q)

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					s.record(0, 0, false, err)
					continue
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.record(elapsed, 0, false, err)
					continue
				}

				var body struct {
					CacheHit bool `json:"cache_hit"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				s.record(elapsed, resp.StatusCode, body.CacheHit, nil)
			}
		}(w)
	}
	wg.Wait()
	return s
}

func report(s *stats, duration time.Duration) {
	total := s.total.Load()
	fmt.Printf("\nrequests:  %d (%.1f/sec)\n", total, float64(total)/duration.Seconds())
	fmt.Printf("success:   %d\n", s.success.Load())
	fmt.Printf("failures:  %d\n", s.failures.Load())
	if ok := s.success.Load(); ok > 0 {
		fmt.Printf("cache hit: %.1f%%\n", float64(s.cacheHits.Load())/float64(ok)*100)
	}

	s.mu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	codes := make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		codes[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Printf("\nlatency: min %s, avg %s, p50 %s, p95 %s, p99 %s, max %s\n",
			latencies[0],
			sum/time.Duration(len(latencies)),
			percentile(latencies, 50),
			percentile(latencies, 95),
			percentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}

	sorted := make([]int, 0, len(codes))
	for code := range codes {
		sorted = append(sorted, code)
	}
	sort.Ints(sorted)
	for _, code := range sorted {
		fmt.Printf("  %d: %d\n", code, codes[code])
	}

	if total == 0 {
		fmt.Println("\nno requests completed; is the service running?")
	}
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
