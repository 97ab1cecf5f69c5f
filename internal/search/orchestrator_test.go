package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/calebmur/docfind/internal/query"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
)

type testItem string

func (i testItem) SearchID() string { return string(i) }

// weightFunc returns one match of the given weight for listed items and no
// matches for everything else.
func weightFunc(weights map[string]float64) SearchFunc {
	return func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
		w, ok := weights[item.SearchID()]
		if !ok {
			return ItemResult{Item: item}, nil
		}
		return ItemResult{
			Item:    item,
			Matches: []Match{{Position: 0, Weight: w}},
		}, nil
	}
}

func TestStartWithoutSearchFunc(t *testing.T) {
	o := New("anything").AddItems(testItem("a"))
	err := o.Start(context.Background())
	if !errors.Is(err, pkgerrors.ErrInvalidState) {
		t.Fatalf("Start without search func = %v, want ErrInvalidState", err)
	}
	select {
	case <-o.Done():
		t.Fatal("failed Start must not begin iteration")
	default:
	}
}

func TestStartTwice(t *testing.T) {
	o := New("q").OnItem(weightFunc(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, pkgerrors.ErrInvalidState) {
		t.Fatalf("second Start = %v, want ErrInvalidState", err)
	}
	o.Wait()
}

func TestEmptyItemList(t *testing.T) {
	var (
		completions int
		gotResults  []ItemResult
		progressed  bool
	)
	o := New("term").
		OnItem(weightFunc(nil)).
		OnProgress(func(current, total int) { progressed = true }).
		OnComplete(func(results []ItemResult) {
			completions++
			gotResults = results
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if completions != 1 {
		t.Errorf("completion hook invoked %d times, want 1", completions)
	}
	if len(gotResults) != 0 {
		t.Errorf("completion results = %v, want empty", gotResults)
	}
	if progressed {
		t.Error("progress hook must not fire for an empty item list")
	}
	if got := o.MaxWeight(); got != NoMaxWeight {
		t.Errorf("MaxWeight = %v, want sentinel %v", got, NoMaxWeight)
	}
}

func TestSingleMatchAmongThree(t *testing.T) {
	type call struct{ current, total int }
	var (
		calls       []call
		completions int
		final       []ItemResult
	)
	o := New("needle").
		AddItems(testItem("A"), testItem("B"), testItem("C")).
		OnItem(weightFunc(map[string]float64{"B": 5})).
		OnProgress(func(current, total int) {
			calls = append(calls, call{current, total})
		}).
		OnComplete(func(results []ItemResult) {
			completions++
			final = results
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	wantCalls := []call{{0, 3}, {1, 3}, {2, 3}}
	if !reflect.DeepEqual(calls, wantCalls) {
		t.Errorf("progress calls = %v, want %v", calls, wantCalls)
	}
	if completions != 1 {
		t.Errorf("completion hook invoked %d times, want 1", completions)
	}
	if len(final) != 1 || final[0].Item.SearchID() != "B" {
		t.Fatalf("final results = %+v, want single result for B", final)
	}
	if got := o.MaxWeight(); got != 5 {
		t.Errorf("MaxWeight = %v, want 5", got)
	}
}

func TestResultOrderAndRunningMax(t *testing.T) {
	weights := map[string]float64{"a": 2, "c": 9, "d": 4}
	o := New("x").
		AddItems(testItem("a"), testItem("b"), testItem("c"), testItem("d")).
		OnItem(weightFunc(weights))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	results := o.Results()
	gotOrder := make([]string, 0, len(results))
	for _, r := range results {
		gotOrder = append(gotOrder, r.Item.SearchID())
	}
	wantOrder := []string{"a", "c", "d"}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Errorf("result order = %v, want %v", gotOrder, wantOrder)
	}
	if got := o.MaxWeight(); got != 9 {
		t.Errorf("MaxWeight = %v, want 9", got)
	}
}

func TestWeightSumPerItem(t *testing.T) {
	o := New("x").
		AddItems(testItem("multi")).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			return ItemResult{
				Item: item,
				Matches: []Match{
					{Position: 3, Weight: 1.5},
					{Position: 8, Weight: 2.5},
				},
			}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if got := o.MaxWeight(); got != 4 {
		t.Errorf("MaxWeight = %v, want sum 4", got)
	}
}

func TestStrictSequentialOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		order    []string
	)
	items := []Item{testItem("1"), testItem("2"), testItem("3"), testItem("4"), testItem("5")}
	o := New("x").
		AddItems(items...).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			order = append(order, item.SearchID())
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return ItemResult{Item: item}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if maxSeen != 1 {
		t.Errorf("max in-flight searches = %d, want 1", maxSeen)
	}
	want := []string{"1", "2", "3", "4", "5"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("search order = %v, want %v", order, want)
	}
}

func TestSearchFuncFailureAbortsWithPartialResults(t *testing.T) {
	var (
		hookErr     error
		completions int
		partial     []ItemResult
		searched    []string
	)
	boom := fmt.Errorf("disk on fire")
	o := New("x").
		AddItems(testItem("a"), testItem("b"), testItem("c")).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			searched = append(searched, item.SearchID())
			switch item.SearchID() {
			case "a":
				return ItemResult{Item: item, Matches: []Match{{Weight: 1}}}, nil
			case "b":
				return ItemResult{}, boom
			default:
				return ItemResult{Item: item}, nil
			}
		}).
		OnError(func(err error) { hookErr = err }).
		OnComplete(func(results []ItemResult) {
			completions++
			partial = results
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if !reflect.DeepEqual(searched, []string{"a", "b"}) {
		t.Errorf("searched = %v, want iteration to stop at the failure", searched)
	}
	if !errors.Is(hookErr, pkgerrors.ErrSearchFuncFailed) {
		t.Errorf("error hook received %v, want ErrSearchFuncFailed", hookErr)
	}
	if !errors.Is(o.Err(), pkgerrors.ErrSearchFuncFailed) {
		t.Errorf("Err() = %v, want ErrSearchFuncFailed", o.Err())
	}
	if completions != 1 {
		t.Errorf("completion hook invoked %d times, want 1", completions)
	}
	if len(partial) != 1 || partial[0].Item.SearchID() != "a" {
		t.Errorf("partial results = %+v, want the single result for a", partial)
	}
}

func TestContextCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var searched int
	o := New("x").
		AddItems(testItem("a"), testItem("b"), testItem("c")).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			searched++
			cancel()
			return ItemResult{Item: item}, nil
		})
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if searched != 1 {
		t.Errorf("searched %d items after cancellation, want 1", searched)
	}
	if !errors.Is(o.Err(), pkgerrors.ErrSearchFuncFailed) {
		t.Errorf("Err() = %v, want wrapped cancellation", o.Err())
	}
}

func TestItemTimeout(t *testing.T) {
	o := New("x").
		AddItems(testItem("slow")).
		WithItemTimeout(10 * time.Millisecond).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			select {
			case <-ctx.Done():
				return ItemResult{}, ctx.Err()
			case <-time.After(time.Second):
				return ItemResult{Item: item}, nil
			}
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if o.Err() == nil {
		t.Fatal("expected a timeout failure")
	}
}

func TestHookReceivesCompiledQuery(t *testing.T) {
	var seen query.Query
	o := New(`alpha|beta "exact phrase"`).
		AddItems(testItem("a")).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			seen = q
			return ItemResult{Item: item}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	want := []query.Clause{
		{Words: []string{"alpha", "beta"}, Op: query.OpOr},
		{Words: []string{"exact phrase"}, Op: query.OpAnd},
	}
	if !reflect.DeepEqual(seen.Clauses, want) {
		t.Errorf("hook query = %+v, want %+v", seen.Clauses, want)
	}
}

func TestTerminalStateCleared(t *testing.T) {
	o := New("term").
		AddItems(testItem("a")).
		OnItem(weightFunc(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if !o.Query().IsEmpty() {
		t.Error("compiled query must be cleared in the terminal state")
	}
}
