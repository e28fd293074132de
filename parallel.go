package docauth

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Settled is the outcome of one item of a MapSettled call
type Settled[R any] struct {
	Value R
	Err   error
}

// MapSettled calls fn for every item with at most limit calls in flight and
// returns once all of them have finished. A failing item does not stop the
// others; results line up with items by index.
func MapSettled[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) []Settled[R] {
	results := make([]Settled[R], len(items))
	if len(items) == 0 {
		return results
	}
	if limit <= 0 {
		limit = len(items)
	}

	// Plain Group rather than WithContext: one failure must not cancel the rest
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			v, err := fn(ctx, item)
			results[i] = Settled[R]{Value: v, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}
