package search

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/calebmur/docfind/pkg/errors"
)

// WithConcurrency enables the bounded-concurrency run variant with at most
// n searches in flight. Values below 2 keep the sequential default. Result
// order still follows item order, but the progress hook may fire out of
// index order and the one-in-flight guarantee no longer applies.
func (o *Orchestrator) WithConcurrency(n int) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.concurrency = n
	return o
}

// runParallel fans item searches out over an errgroup with a concurrency
// limit. Matches land in per-item slots so the accumulated results keep the
// original item order regardless of completion order.
func (o *Orchestrator) runParallel(ctx context.Context, limit int) {
	total := len(o.items)
	slots := make([]*ItemResult, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var progressMu sync.Mutex
	for i, item := range o.items {
		g.Go(func() error {
			result, err := o.invoke(gctx, item)
			if err != nil {
				return fmt.Errorf("%w: item %q: %v", pkgerrors.ErrSearchFuncFailed, item.SearchID(), err)
			}
			if len(result.Matches) > 0 {
				slots[i] = &result
			}
			if o.onProgress != nil {
				progressMu.Lock()
				o.onProgress(i, total)
				progressMu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	for _, r := range slots {
		if r == nil {
			continue
		}
		o.results = append(o.results, *r)
		if w := r.TotalWeight(); w > o.maxWeight {
			o.maxWeight = w
		}
	}
	if err != nil {
		o.logger.Error("parallel run aborted", "error", err)
	}
	o.finish(err)
}
