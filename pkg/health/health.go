// Package health aggregates dependency probes into liveness and readiness
// endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrDegraded marks a probe failure that should not fail readiness, such
// as an optional dependency being unavailable.
var ErrDegraded = errors.New("degraded")

// Status is the health state of a dependency or of the service overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Probe checks one dependency. A nil error means up; ErrDegraded-wrapped
// errors are reported as degraded rather than down.
type Probe func(ctx context.Context) error

// Result is the outcome of a single probe.
type Result struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report aggregates all probe results. The overall status is the worst
// status among the dependencies.
type Report struct {
	Status       Status            `json:"status"`
	Dependencies map[string]Result `json:"dependencies"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// Checker runs registered probes concurrently.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

func NewChecker() *Checker {
	return &Checker{probes: make(map[string]Probe)}
}

// Register adds a named probe. Registering the same name twice replaces
// the earlier probe.
func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Run executes all probes concurrently and aggregates their results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	report := Report{
		Status:       StatusUp,
		Dependencies: make(map[string]Result, len(probes)),
		CheckedAt:    time.Now().UTC(),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		g.Go(func() error {
			start := time.Now()
			err := probe(ctx)
			res := Result{Status: StatusUp, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Status = StatusDown
				if errors.Is(err, ErrDegraded) {
					res.Status = StatusDegraded
				}
				res.Error = err.Error()
			}
			mu.Lock()
			report.Dependencies[name] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, res := range report.Dependencies {
		switch res.Status {
		case StatusDown:
			report.Status = StatusDown
			return report
		case StatusDegraded:
			report.Status = StatusDegraded
		}
	}
	return report
}

// LiveHandler answers liveness probes. It only proves the process is
// serving requests and never touches dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes by running every registered probe
// and returning 503 unless all dependencies are up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
