package montecarlo

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
	"github.com/atlas-desktop/validation-backend/internal/workers"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Simulator runs Monte Carlo trials over synthetic return paths and
// aggregates the resulting performance metrics.
type Simulator struct {
	logger *zap.Logger
	calc   *metrics.Calculator
	config types.MonteCarloConfig
}

// NewSimulator creates a Monte Carlo simulator
func NewSimulator(logger *zap.Logger, config types.MonteCarloConfig) *Simulator {
	return &Simulator{
		logger: logger,
		calc:   metrics.NewCalculator(config.PeriodsPerYear),
		config: config,
	}
}

// newSampler selects the sampling family from the configuration
func (s *Simulator) newSampler(returns []float64) Sampler {
	switch s.config.Sampler {
	case types.SamplerStudentT:
		return NewStudentTSampler(returns, s.config.DegreesFreedom)
	case types.SamplerBlockBootstrap:
		return NewBlockBootstrapSampler(returns, s.config.BlockSize)
	default:
		return NewNormalSampler(returns)
	}
}

// Run executes the configured number of trials against the historical
// return series. Trials run in parallel; each trial is seeded from the
// base seed plus its index, so identical configurations reproduce
// identical results regardless of worker count. Trials whose sampled
// path yields no usable returns are skipped rather than failing the run.
func (s *Simulator) Run(ctx context.Context, returns []float64) (*types.MonteCarloRunResult, error) {
	if s.config.Trials <= 0 {
		return nil, &types.InvalidParameterError{Param: "trials", Reason: "must be positive"}
	}
	if len(returns) == 0 {
		return nil, &types.InsufficientDataError{Op: "monte carlo", Need: 1, Got: 0}
	}

	seed := s.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sampler := s.newSampler(returns)
	pathLen := len(returns)

	start := time.Now()
	s.logger.Info("starting monte carlo simulation",
		zap.Int("trials", s.config.Trials),
		zap.Int("path_length", pathLen),
		zap.String("sampler", string(s.config.Sampler)),
		zap.Int64("seed", seed))

	trials := make([]*types.SimulationTrial, s.config.Trials)
	pool := workers.NewPool(s.logger, s.config.Workers)

	stats, err := pool.Run(ctx, s.config.Trials, func(ctx context.Context, idx int) error {
		rng := rand.New(rand.NewSource(seed + int64(idx) + 1))
		path := sampler.Sample(rng, pathLen)
		if len(path) == 0 {
			return &types.InsufficientDataError{Op: "monte carlo trial", Need: 1, Got: 0}
		}
		trials[idx] = &types.SimulationTrial{
			Index:   idx,
			Returns: path,
			Metrics: s.calc.Calculate(path),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	completed := make([]types.SimulationTrial, 0, len(trials))
	results := make([]types.PerformanceMetrics, 0, len(trials))
	for _, t := range trials {
		if t == nil {
			continue
		}
		completed = append(completed, *t)
		results = append(results, t.Metrics)
	}
	if len(completed) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	s.logger.Info("monte carlo simulation complete",
		zap.Int("completed", len(completed)),
		zap.Int("skipped", stats.Skipped()),
		zap.Duration("elapsed", time.Since(start)))

	return &types.MonteCarloRunResult{
		Trials:    completed,
		Aggregate: metrics.SummarizeMetrics(results),
		Skipped:   stats.Skipped(),
	}, nil
}
