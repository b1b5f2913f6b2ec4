// Package concurrency holds the goroutine pool used to fan work out over a fixed set of tasks.
package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a pool running at most maxGoroutines tasks at once, each receiving a context
// derived from ctx. Wait() blocks until every task has returned and reports only the first error seen.
//
// With cancelOnError set, the context handed to still-running tasks is canceled as soon as one task
// fails. Otherwise sibling tasks run to completion regardless of failures.
func NewPool(ctx context.Context, maxGoroutines int, cancelOnError bool) *pool.ContextPool {
	p := pool.New().
		WithContext(ctx).
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
	if cancelOnError {
		p = p.WithCancelOnError()
	}
	return p
}
