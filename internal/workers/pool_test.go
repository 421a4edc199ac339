package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestRunExecutesEveryJob(t *testing.T) {
	pool := NewPool(zap.NewNop(), 4)

	var hits [100]int32
	stats, err := pool.Run(context.Background(), 100, func(ctx context.Context, idx int) error {
		atomic.AddInt32(&hits[idx], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if stats.Completed != 100 {
		t.Errorf("Completed = %d, want 100", stats.Completed)
	}
	for i, h := range hits {
		if h != 1 {
			t.Errorf("job %d ran %d times, want 1", i, h)
		}
	}
}

func TestRunCountsFailures(t *testing.T) {
	pool := NewPool(zap.NewNop(), 2)

	stats, err := pool.Run(context.Background(), 10, func(ctx context.Context, idx int) error {
		if idx%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("item failures should not fail the batch: %v", err)
	}

	if stats.Completed != 5 || stats.Failed != 5 {
		t.Errorf("stats = %+v, want 5 completed, 5 failed", stats)
	}
	if stats.Skipped() != 5 {
		t.Errorf("Skipped() = %d, want 5", stats.Skipped())
	}
}

func TestRunRecoversPanics(t *testing.T) {
	pool := NewPool(zap.NewNop(), 2)

	stats, err := pool.Run(context.Background(), 4, func(ctx context.Context, idx int) error {
		if idx == 1 {
			panic("job blew up")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("panic should not fail the batch: %v", err)
	}

	if stats.Panicked != 1 || stats.Completed != 3 {
		t.Errorf("stats = %+v, want 1 panicked, 3 completed", stats)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pool := NewPool(zap.NewNop(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	var count int32
	stats, err := pool.Run(ctx, 1000, func(ctx context.Context, idx int) error {
		if atomic.AddInt32(&count, 1) == 10 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if stats.Completed >= 1000 {
		t.Error("cancellation did not stop the batch early")
	}
}

func TestRunZeroJobs(t *testing.T) {
	pool := NewPool(zap.NewNop(), 4)

	stats, err := pool.Run(context.Background(), 0, func(ctx context.Context, idx int) error {
		t.Error("job ran for empty batch")
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Completed != 0 {
		t.Errorf("Completed = %d, want 0", stats.Completed)
	}
}

func TestNewPoolDefaultSize(t *testing.T) {
	if NewPool(zap.NewNop(), 0).Size() <= 0 {
		t.Error("default pool size should be positive")
	}
	if got := NewPool(zap.NewNop(), 7).Size(); got != 7 {
		t.Errorf("Size() = %d, want 7", got)
	}
}
