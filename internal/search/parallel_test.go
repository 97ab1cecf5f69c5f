package search

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/calebmur/docfind/internal/query"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
)

func TestParallelPreservesItemOrder(t *testing.T) {
	weights := map[string]float64{"a": 1, "c": 3, "e": 2}
	o := New("x").
		AddItems(testItem("a"), testItem("b"), testItem("c"), testItem("d"), testItem("e")).
		WithConcurrency(3).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			// Finish in shuffled order to exercise the slot compaction.
			switch item.SearchID() {
			case "a":
				time.Sleep(5 * time.Millisecond)
			case "c":
				time.Sleep(2 * time.Millisecond)
			}
			w, ok := weights[item.SearchID()]
			if !ok {
				return ItemResult{Item: item}, nil
			}
			return ItemResult{Item: item, Matches: []Match{{Weight: w}}}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	results := o.Results()
	gotOrder := make([]string, 0, len(results))
	for _, r := range results {
		gotOrder = append(gotOrder, r.Item.SearchID())
	}
	if want := []string{"a", "c", "e"}; !reflect.DeepEqual(gotOrder, want) {
		t.Errorf("result order = %v, want %v", gotOrder, want)
	}
	if got := o.MaxWeight(); got != 3 {
		t.Errorf("MaxWeight = %v, want 3", got)
	}
}

func TestParallelRespectsLimit(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	items := make([]Item, 0, 12)
	for i := 0; i < 12; i++ {
		items = append(items, testItem(string(rune('a'+i))))
	}
	o := New("x").
		AddItems(items...).
		WithConcurrency(4).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return ItemResult{Item: item}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if maxSeen > 4 {
		t.Errorf("max in-flight searches = %d, want at most 4", maxSeen)
	}
}

func TestParallelProgressCount(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	o := New("x").
		AddItems(testItem("a"), testItem("b"), testItem("c")).
		WithConcurrency(2).
		OnProgress(func(current, total int) {
			mu.Lock()
			calls++
			mu.Unlock()
			if total != 3 {
				t.Errorf("progress total = %d, want 3", total)
			}
		}).
		OnItem(weightFunc(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if calls != 3 {
		t.Errorf("progress calls = %d, want 3", calls)
	}
}

func TestParallelFailureSurfaces(t *testing.T) {
	o := New("x").
		AddItems(testItem("a"), testItem("b")).
		WithConcurrency(2).
		OnItem(func(ctx context.Context, item Item, q query.Query) (ItemResult, error) {
			if item.SearchID() == "b" {
				return ItemResult{}, errors.New("index corrupt")
			}
			return ItemResult{Item: item, Matches: []Match{{Weight: 1}}}, nil
		})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Wait()

	if !errors.Is(o.Err(), pkgerrors.ErrSearchFuncFailed) {
		t.Errorf("Err() = %v, want ErrSearchFuncFailed", o.Err())
	}
}
