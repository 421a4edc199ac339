// Package engine exposes the validation operations behind a single
// facade that handles series validation, logging, and telemetry.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/bootstrap"
	"github.com/atlas-desktop/validation-backend/internal/crossval"
	"github.com/atlas-desktop/validation-backend/internal/montecarlo"
	"github.com/atlas-desktop/validation-backend/internal/optimization"
	"github.com/atlas-desktop/validation-backend/internal/regime"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/internal/strategy"
	"github.com/atlas-desktop/validation-backend/internal/telemetry"
	"github.com/atlas-desktop/validation-backend/internal/walkforward"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Operation names used in logs and telemetry labels
const (
	OpMonteCarlo            = "monte_carlo"
	OpBootstrap             = "bootstrap"
	OpCrossValidation       = "cross_validation"
	OpWalkForward           = "walk_forward"
	OpMonteCarloWalkForward = "monte_carlo_walk_forward"
	OpRegimeAware           = "regime_aware"
	OpRegimeWalkForward     = "regime_walk_forward"
)

// Engine runs validation operations over historical series
type Engine struct {
	logger    *zap.Logger
	telemetry *telemetry.Metrics
}

// New creates a validation engine
func New(logger *zap.Logger, tel *telemetry.Metrics) *Engine {
	return &Engine{logger: logger, telemetry: tel}
}

// RunMonteCarlo simulates synthetic return paths drawn from the series
func (e *Engine) RunMonteCarlo(ctx context.Context, bars []*types.OHLCV, cfg types.MonteCarloConfig) (*types.MonteCarloRunResult, error) {
	start := time.Now()

	var result *types.MonteCarloRunResult
	err := series.Validate(bars)
	if err == nil {
		sim := montecarlo.NewSimulator(e.logger.Named("montecarlo"), cfg)
		result, err = sim.Run(ctx, series.Returns(bars))
	}

	completed, skipped := 0, 0
	if result != nil {
		completed, skipped = len(result.Trials), result.Skipped
	}
	e.observe(OpMonteCarlo, completed, skipped, start, err)
	return result, err
}

// RunBootstrap resamples the series rows with replacement
func (e *Engine) RunBootstrap(ctx context.Context, bars []*types.OHLCV, cfg types.BootstrapConfig) (*types.BootstrapRunResult, error) {
	start := time.Now()

	var result *types.BootstrapRunResult
	err := series.Validate(bars)
	if err == nil {
		result, err = bootstrap.NewResampler(e.logger.Named("bootstrap"), cfg).Run(ctx, bars)
	}

	completed, skipped := 0, 0
	if result != nil {
		completed, skipped = len(result.Samples), result.Skipped
	}
	e.observe(OpBootstrap, completed, skipped, start, err)
	return result, err
}

// RunCrossValidation scores the series fold by fold
func (e *Engine) RunCrossValidation(ctx context.Context, bars []*types.OHLCV, cfg types.CrossValidationConfig) (*types.CrossValidationResult, error) {
	start := time.Now()

	var result *types.CrossValidationResult
	err := series.Validate(bars)
	if err == nil {
		result, err = crossval.NewSplitter(e.logger.Named("crossval"), cfg).Run(ctx, bars)
	}

	completed, skipped := 0, 0
	if result != nil {
		completed, skipped = len(result.Folds), result.Skipped
	}
	e.observe(OpCrossValidation, completed, skipped, start, err)
	return result, err
}

// RunWalkForward rolls the optimize/test cycle across the series
func (e *Engine) RunWalkForward(ctx context.Context, bars []*types.OHLCV, cfg types.WalkForwardConfig, stratCfg types.StrategyConfig) (*types.WalkForwardResult, error) {
	start := time.Now()

	var result *types.WalkForwardResult
	err := series.Validate(bars)
	if err == nil {
		result, err = e.scheduler(cfg).Run(ctx, bars, stratCfg)
	}

	completed, skipped := 0, 0
	if result != nil {
		completed, skipped = result.Aggregate.Steps, result.Aggregate.Skipped
	}
	e.observe(OpWalkForward, completed, skipped, start, err)
	return result, err
}

// RunMonteCarloWalkForward repeats the walk-forward cycle over
// resampled copies of the series
func (e *Engine) RunMonteCarloWalkForward(ctx context.Context, bars []*types.OHLCV, cfg types.WalkForwardConfig, stratCfg types.StrategyConfig, mc types.MonteCarloConfig) (*types.MonteCarloWalkForwardResult, error) {
	start := time.Now()

	var result *types.MonteCarloWalkForwardResult
	err := series.Validate(bars)
	if err == nil {
		result, err = e.scheduler(cfg).RunMonteCarlo(ctx, bars, stratCfg, mc)
	}

	completed, skipped := 0, 0
	if result != nil {
		completed, skipped = len(result.Runs), result.Skipped
	}
	e.observe(OpMonteCarloWalkForward, completed, skipped, start, err)
	return result, err
}

// RunRegimeAware segments the series by regime and simulates each
// retained segment independently
func (e *Engine) RunRegimeAware(ctx context.Context, bars []*types.OHLCV, cfg types.RegimeConfig, mc types.MonteCarloConfig) (*types.RegimeAwareResult, error) {
	start := time.Now()

	var result *types.RegimeAwareResult
	err := series.Validate(bars)
	if err == nil {
		result, err = regime.NewSegmenter(e.logger.Named("regime"), cfg).Run(ctx, bars, mc)
	}

	completed := 0
	if result != nil {
		completed = len(result.Segments)
	}
	e.observe(OpRegimeAware, completed, 0, start, err)
	return result, err
}

// RunRegimeWalkForward walks each contiguous regime segment
// independently
func (e *Engine) RunRegimeWalkForward(ctx context.Context, bars []*types.OHLCV, cfg types.WalkForwardConfig, stratCfg types.StrategyConfig, regimeCfg types.RegimeConfig) (*types.RegimeWalkForwardResult, error) {
	start := time.Now()

	var result *types.RegimeWalkForwardResult
	err := series.Validate(bars)
	if err == nil {
		result, err = e.scheduler(cfg).RunByRegime(ctx, bars, stratCfg, regimeCfg)
	}

	completed := 0
	if result != nil {
		completed = len(result.Segments)
	}
	e.observe(OpRegimeWalkForward, completed, 0, start, err)
	return result, err
}

// scheduler builds a walk-forward scheduler with the momentum evaluator
func (e *Engine) scheduler(cfg types.WalkForwardConfig) *walkforward.Scheduler {
	evaluator := strategy.NewMomentumEvaluator(
		e.logger.Named("strategy"),
		cfg.PeriodsPerYear,
		optimization.Config{Workers: cfg.Workers},
	)
	return walkforward.NewScheduler(e.logger.Named("walkforward"), cfg, evaluator)
}

// observe records the outcome of one operation
func (e *Engine) observe(op string, completed, skipped int, start time.Time, err error) {
	elapsed := time.Since(start)
	if e.telemetry != nil {
		e.telemetry.ObserveRun(op, completed, skipped, elapsed, err)
	}
	if err != nil {
		e.logger.Error("validation run failed",
			zap.String("operation", op),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	e.logger.Info("validation run finished",
		zap.String("operation", op),
		zap.Int("completed", completed),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", elapsed))
}
