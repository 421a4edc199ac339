// Package bootstrap provides i.i.d. bootstrap resampling of historical
// price rows with replacement.
package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/internal/workers"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Resampler draws repeated row samples with replacement and aggregates
// the metrics of each resampled series.
type Resampler struct {
	logger *zap.Logger
	calc   *metrics.Calculator
	config types.BootstrapConfig
}

// NewResampler creates a bootstrap resampler
func NewResampler(logger *zap.Logger, config types.BootstrapConfig) *Resampler {
	return &Resampler{
		logger: logger,
		calc:   metrics.NewCalculator(config.PeriodsPerYear),
		config: config,
	}
}

// Run draws the configured number of samples from the historical rows.
// Each sample picks floor(len(bars) * fraction) rows uniformly with
// replacement and scores the return sequence of the resampled rows.
// Samples whose resampled rows yield no usable returns are skipped; the
// run fails only when every sample is skipped.
func (r *Resampler) Run(ctx context.Context, bars []*types.OHLCV) (*types.BootstrapRunResult, error) {
	if r.config.Samples <= 0 {
		return nil, &types.InvalidParameterError{Param: "samples", Reason: "must be positive"}
	}
	if r.config.Fraction <= 0 || r.config.Fraction > 1 {
		return nil, &types.InvalidParameterError{Param: "fraction", Reason: "must be in (0, 1]"}
	}

	rows := int(float64(len(bars)) * r.config.Fraction)
	if rows == 0 {
		return nil, &types.InvalidParameterError{Param: "fraction", Reason: "resampled series is empty"}
	}

	seed := r.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()
	r.logger.Info("starting bootstrap resampling",
		zap.Int("samples", r.config.Samples),
		zap.Int("rows_per_sample", rows),
		zap.Int64("seed", seed))

	samples := make([]*types.BootstrapSample, r.config.Samples)
	pool := workers.NewPool(r.logger, r.config.Workers)

	stats, err := pool.Run(ctx, r.config.Samples, func(ctx context.Context, idx int) error {
		rng := rand.New(rand.NewSource(seed + int64(idx) + 1))
		indices := make([]int, rows)
		for i := range indices {
			indices[i] = rng.Intn(len(bars))
		}

		returns := series.Returns(series.Subset(bars, indices))
		if len(returns) == 0 {
			return &types.InsufficientDataError{Op: "bootstrap sample", Need: 2, Got: rows}
		}

		samples[idx] = &types.BootstrapSample{
			Index:   idx,
			Metrics: r.calc.Calculate(returns),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	completed := make([]types.BootstrapSample, 0, len(samples))
	results := make([]types.PerformanceMetrics, 0, len(samples))
	for _, s := range samples {
		if s == nil {
			continue
		}
		completed = append(completed, *s)
		results = append(results, s.Metrics)
	}
	if len(completed) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	r.logger.Info("bootstrap resampling complete",
		zap.Int("completed", len(completed)),
		zap.Int("skipped", stats.Skipped()),
		zap.Duration("elapsed", time.Since(start)))

	return &types.BootstrapRunResult{
		Samples:   completed,
		Aggregate: metrics.SummarizeMetrics(results),
		Skipped:   stats.Skipped(),
	}, nil
}
