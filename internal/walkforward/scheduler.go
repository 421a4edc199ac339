// Package walkforward provides rolling out-of-sample validation: the
// strategy is re-optimized on each training window and scored on the
// unseen window that follows it.
package walkforward

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
	"github.com/atlas-desktop/validation-backend/internal/montecarlo"
	"github.com/atlas-desktop/validation-backend/internal/regime"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/internal/strategy"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Scheduler phases, recorded on log entries
const (
	phaseInit         = "INIT"
	phaseOptimize     = "OPTIMIZE"
	phaseTestEvaluate = "TEST_EVALUATE"
	phaseRecord       = "RECORD"
	phaseDone         = "DONE"
)

// Scheduler drives the rolling train/optimize/test cycle
type Scheduler struct {
	logger    *zap.Logger
	config    types.WalkForwardConfig
	evaluator strategy.Evaluator
}

// NewScheduler creates a walk-forward scheduler
func NewScheduler(logger *zap.Logger, config types.WalkForwardConfig, evaluator strategy.Evaluator) *Scheduler {
	return &Scheduler{logger: logger, config: config, evaluator: evaluator}
}

// Windows computes the train/test boundaries for a series of n rows.
// Step k trains on [k*retrain, k*retrain+initial) and tests on the
// testSize rows that follow; stepping ends when a full test window no
// longer fits. A series shorter than one train plus one test window
// yields no steps.
func (s *Scheduler) Windows(n int) ([]types.ValidationSplit, error) {
	if s.config.InitialTrainSize <= 0 {
		return nil, &types.InvalidParameterError{Param: "initial_train_size", Reason: "must be positive"}
	}
	if s.config.RetrainFrequency <= 0 {
		return nil, &types.InvalidParameterError{Param: "retrain_frequency", Reason: "must be positive"}
	}
	if s.config.TestSize <= 0 {
		return nil, &types.InvalidParameterError{Param: "test_size", Reason: "must be positive"}
	}

	var windows []types.ValidationSplit
	for k := 0; ; k++ {
		trainStart := k * s.config.RetrainFrequency
		trainEnd := trainStart + s.config.InitialTrainSize
		if trainEnd+s.config.TestSize > n {
			break
		}
		windows = append(windows, types.ValidationSplit{
			Train: types.IndexRange{Start: trainStart, End: trainEnd},
			Test:  types.IndexRange{Start: trainEnd, End: trainEnd + s.config.TestSize},
		})
	}
	return windows, nil
}

// Run walks the series window by window: each step optimizes strategy
// parameters on its training rows and scores them on the test rows that
// follow. Windows run in parallel but steps are recorded in window
// order, so output is deterministic. A window whose optimizer or
// evaluator fails is skipped; the run fails only when every window is
// skipped.
func (s *Scheduler) Run(ctx context.Context, bars []*types.OHLCV, stratCfg types.StrategyConfig) (*types.WalkForwardResult, error) {
	windows, err := s.Windows(len(bars))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.Info("starting walk-forward run",
		zap.String("phase", phaseInit),
		zap.Int("rows", len(bars)),
		zap.Int("windows", len(windows)))

	if len(windows) == 0 {
		return nil, &types.InsufficientDataError{
			Op:   "walk-forward scheduling",
			Need: s.config.InitialTrainSize + s.config.TestSize,
			Got:  len(bars),
		}
	}

	steps := make([]*types.WalkForwardStep, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.config.Workers
	if limit <= 0 {
		limit = len(windows)
	}
	g.SetLimit(limit)

	for i, window := range windows {
		i, window := i, window
		g.Go(func() error {
			step, err := s.runWindow(gctx, bars, i, window, stratCfg)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("skipping failed window",
					zap.Int("window", i),
					zap.Error(&types.CollaboratorError{Op: "walk-forward window", Err: err}))
				return nil
			}
			steps[i] = step
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recorded := make([]types.WalkForwardStep, 0, len(steps))
	for _, step := range steps {
		if step == nil {
			continue
		}
		s.logger.Debug("recording step",
			zap.String("phase", phaseRecord),
			zap.Int("step", step.Index),
			zap.Float64("test_return", float64(step.TestMetrics.TotalReturn)))
		recorded = append(recorded, *step)
	}
	if len(recorded) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	result := &types.WalkForwardResult{
		Steps:     recorded,
		Aggregate: aggregate(recorded, len(windows)-len(recorded)),
	}

	s.logger.Info("walk-forward run complete",
		zap.String("phase", phaseDone),
		zap.Int("steps", len(recorded)),
		zap.Int("skipped", result.Aggregate.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// runWindow executes the optimize/test cycle for one window
func (s *Scheduler) runWindow(ctx context.Context, bars []*types.OHLCV, idx int, window types.ValidationSplit, stratCfg types.StrategyConfig) (*types.WalkForwardStep, error) {
	train := series.Slice(bars, window.Train)
	test := series.Slice(bars, window.Test)

	s.logger.Debug("optimizing window",
		zap.String("phase", phaseOptimize),
		zap.Int("window", idx),
		zap.Int("train_start", window.Train.Start),
		zap.Int("train_end", window.Train.End))

	params, err := s.evaluator.Optimize(ctx, train, stratCfg)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("evaluating test window",
		zap.String("phase", phaseTestEvaluate),
		zap.Int("window", idx),
		zap.Int("test_start", window.Test.Start),
		zap.Int("test_end", window.Test.End))

	testMetrics, err := s.evaluator.Evaluate(ctx, test, params, stratCfg)
	if err != nil {
		return nil, err
	}

	return &types.WalkForwardStep{
		Index:       idx,
		Split:       window,
		Params:      params,
		TestMetrics: testMetrics,
	}, nil
}

// aggregate summarizes out-of-sample performance across recorded steps
func aggregate(steps []types.WalkForwardStep, skipped int) types.WalkForwardAggregate {
	returns := make([]float64, len(steps))
	sharpes := make([]float64, len(steps))
	drawdowns := make([]float64, len(steps))
	positive := 0
	worst := 0.0
	for i, step := range steps {
		returns[i] = float64(step.TestMetrics.TotalReturn)
		sharpes[i] = float64(step.TestMetrics.SharpeRatio)
		drawdowns[i] = float64(step.TestMetrics.MaxDrawdown)
		if step.TestMetrics.SharpeRatio > 0 {
			positive++
		}
		if drawdowns[i] < worst {
			worst = drawdowns[i]
		}
	}

	return types.WalkForwardAggregate{
		Steps:         len(steps),
		Skipped:       skipped,
		AvgReturn:     types.Float(metrics.Mean(returns)),
		StdReturn:     types.Float(metrics.Std(returns)),
		AvgSharpe:     types.Float(metrics.Mean(sharpes)),
		StdSharpe:     types.Float(metrics.Std(sharpes)),
		AvgDrawdown:   types.Float(metrics.Mean(drawdowns)),
		WorstDrawdown: types.Float(worst),
		Consistency:   types.Float(float64(positive) / float64(len(steps))),
	}
}

// RunMonteCarlo repeats the full walk-forward cycle over resampled
// copies of the input series. Each run rebuilds a synthetic price path
// from block-bootstrapped historical returns rather than independent
// row draws: the rolling windows evaluate serial structure, which an
// i.i.d. shuffle would destroy. Runs that produce no recorded steps
// are skipped.
func (s *Scheduler) RunMonteCarlo(ctx context.Context, bars []*types.OHLCV, stratCfg types.StrategyConfig, mc types.MonteCarloConfig) (*types.MonteCarloWalkForwardResult, error) {
	if mc.Trials <= 0 {
		return nil, &types.InvalidParameterError{Param: "trials", Reason: "must be positive"}
	}

	returns := series.Returns(bars)
	if len(returns) == 0 {
		return nil, &types.InsufficientDataError{Op: "monte carlo walk-forward", Need: 2, Got: len(bars)}
	}

	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler := montecarlo.NewBlockBootstrapSampler(returns, mc.BlockSize)

	start := time.Now()
	s.logger.Info("starting monte carlo walk-forward",
		zap.Int("runs", mc.Trials),
		zap.Int64("seed", seed))

	runs := make([]types.WalkForwardAggregate, 0, mc.Trials)
	skipped := 0
	worst := 0.0
	for i := 0; i < mc.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng := rand.New(rand.NewSource(seed + int64(i) + 1))
		synthetic := syntheticBars(bars, sampler.Sample(rng, len(returns)))

		result, err := s.Run(ctx, synthetic, stratCfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			skipped++
			continue
		}

		runs = append(runs, result.Aggregate)
		if float64(result.Aggregate.WorstDrawdown) < worst {
			worst = float64(result.Aggregate.WorstDrawdown)
		}
	}
	if len(runs) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	avgReturns := make([]float64, len(runs))
	avgSharpes := make([]float64, len(runs))
	for i, run := range runs {
		avgReturns[i] = float64(run.AvgReturn)
		avgSharpes[i] = float64(run.AvgSharpe)
	}

	s.logger.Info("monte carlo walk-forward complete",
		zap.Int("runs", len(runs)),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)))

	return &types.MonteCarloWalkForwardResult{
		Runs:          runs,
		MeanAvgReturn: types.Float(metrics.Mean(avgReturns)),
		StdAvgReturn:  types.Float(metrics.Std(avgReturns)),
		MeanAvgSharpe: types.Float(metrics.Mean(avgSharpes)),
		StdAvgSharpe:  types.Float(metrics.Std(avgSharpes)),
		WorstDrawdown: types.Float(worst),
		Skipped:       skipped,
	}, nil
}

// RunByRegime segments the series into contiguous regime runs and
// walks each retained segment independently. Segments too short for a
// single window are skipped and reported alongside the size-excluded
// rows.
func (s *Scheduler) RunByRegime(ctx context.Context, bars []*types.OHLCV, stratCfg types.StrategyConfig, regimeCfg types.RegimeConfig) (*types.RegimeWalkForwardResult, error) {
	// Walk-forward windows need chronologically adjacent rows.
	regimeCfg.Contiguous = true

	segmenter := regime.NewSegmenter(s.logger, regimeCfg)
	segments, excluded, err := segmenter.Segment(bars)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*types.WalkForwardResult, len(segments))
	for i, seg := range segments {
		key := labelKey(seg.Label, i)
		result, err := s.Run(ctx, seg.Rows, stratCfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping segment too short for walk-forward",
				zap.String("segment", key),
				zap.Int("rows", len(seg.Rows)),
				zap.Error(err))
			excluded[seg.Label] += len(seg.Rows)
			continue
		}
		results[key] = result
	}
	if len(results) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	return &types.RegimeWalkForwardResult{Segments: results, Excluded: excluded}, nil
}

// labelKey disambiguates repeated contiguous runs of the same regime
func labelKey(label string, idx int) string {
	return label + "_" + strconv.Itoa(idx)
}

// syntheticBars rebuilds a price series from the first historical close
// and a resampled return path, keeping original timestamps
func syntheticBars(bars []*types.OHLCV, returns []float64) []*types.OHLCV {
	out := make([]*types.OHLCV, 0, len(returns)+1)
	price, _ := bars[0].Close.Float64()
	out = append(out, &types.OHLCV{Timestamp: bars[0].Timestamp, Close: bars[0].Close})

	for i, r := range returns {
		price *= 1 + r
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			price = 1e-9
		}
		out = append(out, &types.OHLCV{
			Timestamp: bars[i+1].Timestamp,
			Close:     decimal.NewFromFloat(price),
		})
	}
	return out
}
