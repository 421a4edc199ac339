// Package workers provides bounded parallel execution for independent
// validation jobs (Monte Carlo trials, bootstrap samples, folds, steps).
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool runs batches of independent indexed jobs with bounded parallelism.
// Jobs return results by value through their closures, so the pool itself
// carries no shared mutable state beyond its counters.
type Pool struct {
	logger *zap.Logger
	size   int
}

// RunStats counts job outcomes for one batch
type RunStats struct {
	Completed int64
	Failed    int64
	Panicked  int64
}

// Skipped returns the number of jobs that did not complete successfully
func (s RunStats) Skipped() int {
	return int(s.Failed + s.Panicked)
}

// NewPool creates a pool. size <= 0 selects runtime.NumCPU().
func NewPool(logger *zap.Logger, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{logger: logger, size: size}
}

// Size returns the worker count
func (p *Pool) Size() int { return p.size }

// Run executes fn for every index in [0, jobs) across the pool's workers
// and waits for completion. A failing or panicking job is counted, logged,
// and never aborts the batch. The context is checked between jobs as the
// cooperative cancellation point; Run returns ctx.Err() when cancelled,
// alongside the stats for jobs already finished.
func (p *Pool) Run(ctx context.Context, jobs int, fn func(ctx context.Context, idx int) error) (RunStats, error) {
	var stats RunStats
	if jobs <= 0 {
		return stats, nil
	}

	indexes := make(chan int)
	var wg sync.WaitGroup

	workers := p.size
	if workers > jobs {
		workers = jobs
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				p.execute(ctx, idx, fn, &stats)
			}
		}()
	}

	var err error
feed:
	for i := 0; i < jobs; i++ {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	return stats, err
}

// execute runs a single job with panic recovery
func (p *Pool) execute(ctx context.Context, idx int, fn func(ctx context.Context, idx int) error, stats *RunStats) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&stats.Panicked, 1)
			p.logger.Error("job panicked",
				zap.Int("index", idx),
				zap.Any("panic", r),
			)
		}
	}()

	if err := fn(ctx, idx); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		p.logger.Debug("job failed", zap.Int("index", idx), zap.Error(err))
		return
	}

	atomic.AddInt64(&stats.Completed, 1)
}
