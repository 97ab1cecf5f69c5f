// Package search drives sequential, hook-based search runs over an ordered
// set of items. The orchestrator compiles the query once at construction,
// then invokes a caller-supplied search function for one item at a time,
// accumulating per-item results and the highest total match weight seen.
//
// The per-item search function is the only party that inspects content; the
// orchestrator itself only sequences calls and aggregates what comes back.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calebmur/docfind/internal/query"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
	"github.com/calebmur/docfind/pkg/resilience"
)

// NoMaxWeight is the running-maximum sentinel before any item has matched.
const NoMaxWeight = float64(-1)

// Item is an opaque handle to something searchable. The orchestrator needs
// identity only and passes the item unmodified to the search function.
type Item interface {
	SearchID() string
}

// Match is a single hit inside one item.
type Match struct {
	Position int     `json:"position"`
	Weight   float64 `json:"weight"`
}

// ItemResult holds all matches the search function found in one item.
type ItemResult struct {
	Item    Item    `json:"item"`
	Matches []Match `json:"matches"`
}

// TotalWeight sums the weights of all matches in the result.
func (r ItemResult) TotalWeight() float64 {
	var sum float64
	for _, m := range r.Matches {
		sum += m.Weight
	}
	return sum
}

// SearchFunc searches a single item against the compiled query. It must
// return a fresh result and must not retain or mutate its inputs.
type SearchFunc func(ctx context.Context, item Item, q query.Query) (ItemResult, error)

// ProgressFunc is invoked after each item's result has been processed, with
// the zero-based index of that item and the total item count.
type ProgressFunc func(current, total int)

// CompleteFunc receives the accumulated results when a run ends, including
// partial results when the run was aborted by a search failure.
type CompleteFunc func(results []ItemResult)

// ErrorFunc receives the failure that aborted a run.
type ErrorFunc func(err error)

// Orchestrator coordinates one search run. Configuration calls chain and
// must all happen before Start; the iteration state (cursor, results,
// running maximum) is owned by the run goroutine alone.
type Orchestrator struct {
	mu          sync.Mutex
	items       []Item
	query       query.Query
	cursor      int
	results     []ItemResult
	maxWeight   float64
	searchFn    SearchFunc
	onProgress  ProgressFunc
	onComplete  CompleteFunc
	onError     ErrorFunc
	itemTimeout time.Duration
	concurrency int
	started     bool
	done        chan struct{}
	err         error
	logger      *slog.Logger
}

// New creates an orchestrator and compiles rawQuery immediately. An empty
// query is legal and compiles to an empty clause sequence.
func New(rawQuery string) *Orchestrator {
	return &Orchestrator{
		query:     query.Compile(rawQuery),
		cursor:    -1,
		results:   make([]ItemResult, 0),
		maxWeight: NoMaxWeight,
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "search-orchestrator"),
	}
}

// AddItems appends items to the pending list, preserving order across calls.
func (o *Orchestrator) AddItems(items ...Item) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, items...)
	return o
}

// OnItem sets the per-item search function, replacing any previous one.
func (o *Orchestrator) OnItem(fn SearchFunc) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.searchFn = fn
	return o
}

// OnProgress sets the optional progress hook.
func (o *Orchestrator) OnProgress(fn ProgressFunc) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = fn
	return o
}

// OnComplete sets the optional completion hook.
func (o *Orchestrator) OnComplete(fn CompleteFunc) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onComplete = fn
	return o
}

// OnError sets the optional hook that observes a run-aborting failure.
func (o *Orchestrator) OnError(fn ErrorFunc) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = fn
	return o
}

// WithItemTimeout bounds each individual search call. Zero (the default)
// leaves calls unbounded.
func (o *Orchestrator) WithItemTimeout(d time.Duration) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.itemTimeout = d
	return o
}

// Query returns the compiled query.
func (o *Orchestrator) Query() query.Query {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.query
}

// Start begins the sequential run and returns immediately; completion is
// observed through the hooks or Wait. It fails with ErrInvalidState when no
// search function is configured or the run was already started.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.searchFn == nil {
		return fmt.Errorf("%w: no search function configured", pkgerrors.ErrInvalidState)
	}
	if o.started {
		return fmt.Errorf("%w: run already started", pkgerrors.ErrInvalidState)
	}
	o.started = true
	if o.concurrency > 1 {
		go o.runParallel(ctx, o.concurrency)
	} else {
		go o.run(ctx)
	}
	return nil
}

// Wait blocks until the run has ended and all hooks have returned.
func (o *Orchestrator) Wait() {
	<-o.done
}

// Done returns a channel closed when the run ends.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Results returns the accumulated results. Valid after the run has ended.
func (o *Orchestrator) Results() []ItemResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results
}

// MaxWeight returns the highest per-item weight sum seen, or NoMaxWeight
// when no item matched. Valid after the run has ended.
func (o *Orchestrator) MaxWeight() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxWeight
}

// Err returns the failure that aborted the run, or nil. Valid after the run
// has ended.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// run is the sequential state machine. Exactly one search is in flight at
// any time; the progress hook for item k returns before item k+1 starts.
func (o *Orchestrator) run(ctx context.Context) {
	for o.cursor+1 < len(o.items) {
		if err := ctx.Err(); err != nil {
			o.finish(fmt.Errorf("%w: %v", pkgerrors.ErrSearchFuncFailed, err))
			return
		}
		o.cursor++
		item := o.items[o.cursor]
		result, err := o.invoke(ctx, item)
		if err != nil {
			o.logger.Error("item search failed, aborting run",
				"item", item.SearchID(),
				"cursor", o.cursor,
				"error", err,
			)
			o.finish(fmt.Errorf("%w: item %q: %v", pkgerrors.ErrSearchFuncFailed, item.SearchID(), err))
			return
		}
		if len(result.Matches) > 0 {
			o.results = append(o.results, result)
			if w := result.TotalWeight(); w > o.maxWeight {
				o.maxWeight = w
			}
		}
		if o.onProgress != nil {
			o.onProgress(o.cursor, len(o.items))
		}
	}
	o.finish(nil)
}

// invoke runs the search function for one item, applying the per-item
// timeout when one is configured.
func (o *Orchestrator) invoke(ctx context.Context, item Item) (ItemResult, error) {
	if o.itemTimeout <= 0 {
		return o.searchFn(ctx, item, o.query)
	}
	var result ItemResult
	err := resilience.WithTimeout(ctx, o.itemTimeout, "item-search", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = o.searchFn(ctx, item, o.query)
		return innerErr
	})
	return result, err
}

// finish moves the orchestrator to its terminal state: item list and
// compiled query cleared, cursor reset, hooks fired exactly once.
func (o *Orchestrator) finish(runErr error) {
	o.mu.Lock()
	o.items = nil
	o.query = query.Query{}
	o.cursor = 0
	o.err = runErr
	results := o.results
	onComplete := o.onComplete
	onError := o.onError
	o.mu.Unlock()

	if runErr != nil && onError != nil {
		onError(runErr)
	}
	if onComplete != nil {
		onComplete(results)
	}
	close(o.done)
}
