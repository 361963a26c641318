// Package parallel runs independent per-item work on a bounded number of
// goroutines.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ClampWorkers turns a user supplied worker count into an actual one.
// Zero means all available cores, and the result never exceeds them.
func ClampWorkers(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("max_workers must be >= 0, got %d", n)
	}
	cores := runtime.NumCPU()
	if n == 0 || n > cores {
		return cores, nil
	}
	return n, nil
}

// For calls fn(i) for every i in [0, n) using at most workers goroutines.
// The first error cancels the remaining work and is returned.
func For(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	w, err := ClampWorkers(workers)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
