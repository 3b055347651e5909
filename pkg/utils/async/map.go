package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of in-flight calls allowed by Map when limit is not positive
const DefaultConcurrency = 3

// Result holds the outcome of one Map call, aligned with the input position
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn for every item with at most limit calls in flight and waits for all of them.
// Results are positional: results[i] belongs to items[i] regardless of completion order.
// A failing call does not stop the others.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result[R], len(items))
	var eg errgroup.Group
	eg.SetLimit(limit)

	for i, item := range items {
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = goerr.New("panic in mapped function", goerr.V("panic", r), goerr.V("index", i))
				}
			}()

			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			v, err := fn(ctx, item)
			results[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}

	_ = eg.Wait()
	return results
}

// Errors returns the non-nil errors of results in input order
func Errors[R any](results []Result[R]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
