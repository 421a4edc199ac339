// Package strategy provides the trading strategies whose parameters the
// validation suite selects and scores.
package strategy

import (
	"context"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
	"github.com/atlas-desktop/validation-backend/internal/optimization"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Evaluator selects strategy parameters on a training window and scores
// a parameter set on an arbitrary window
type Evaluator interface {
	Optimize(ctx context.Context, train []*types.OHLCV, cfg types.StrategyConfig) (types.Params, error)
	Evaluate(ctx context.Context, rows []*types.OHLCV, params types.Params, cfg types.StrategyConfig) (types.PerformanceMetrics, error)
}

// Momentum parameter names and defaults
const (
	ParamFastPeriod = "fast_period"
	ParamSlowPeriod = "slow_period"

	defaultFastPeriod = 10
	defaultSlowPeriod = 30
)

// MomentumEvaluator trades a moving-average crossover: long while the
// fast SMA is above the slow SMA, flat otherwise.
type MomentumEvaluator struct {
	logger *zap.Logger
	calc   *metrics.Calculator
	opt    *optimization.Optimizer
}

// NewMomentumEvaluator creates a momentum evaluator
func NewMomentumEvaluator(logger *zap.Logger, periodsPerYear int, optConfig optimization.Config) *MomentumEvaluator {
	return &MomentumEvaluator{
		logger: logger,
		calc:   metrics.NewCalculator(periodsPerYear),
		opt:    optimization.NewOptimizer(logger, optConfig),
	}
}

// Optimize grid-searches the configured space on the training window
// and returns the best parameter set. An empty search space returns the
// configured parameters unchanged.
func (e *MomentumEvaluator) Optimize(ctx context.Context, train []*types.OHLCV, cfg types.StrategyConfig) (types.Params, error) {
	if len(cfg.SearchSpace) == 0 {
		return cfg.Params.Clone(), nil
	}

	result, err := e.opt.GridSearch(ctx, cfg.SearchSpace, func(ctx context.Context, params types.Params) (float64, error) {
		m, err := e.Evaluate(ctx, train, params, cfg)
		if err != nil {
			return 0, err
		}
		return targetScore(m, cfg.TargetMetric), nil
	})
	if err != nil {
		return nil, err
	}
	return result.BestParams, nil
}

// Evaluate scores one parameter set over the given rows. The position
// decided at row i earns the return from row i to i+1, so signals never
// act on prices they have not seen.
func (e *MomentumEvaluator) Evaluate(ctx context.Context, rows []*types.OHLCV, params types.Params, cfg types.StrategyConfig) (types.PerformanceMetrics, error) {
	fast := periodParam(params, ParamFastPeriod, defaultFastPeriod)
	slow := periodParam(params, ParamSlowPeriod, defaultSlowPeriod)
	if fast >= slow {
		return types.PerformanceMetrics{}, &types.InvalidParameterError{
			Param:  ParamFastPeriod,
			Reason: "fast period must be below slow period",
		}
	}
	if len(rows) <= slow {
		return types.PerformanceMetrics{}, &types.InsufficientDataError{
			Op:   "momentum evaluation",
			Need: slow + 1,
			Got:  len(rows),
		}
	}
	if err := ctx.Err(); err != nil {
		return types.PerformanceMetrics{}, err
	}

	closes := series.Closes(rows)
	fastSMA := talib.Sma(closes, fast)
	slowSMA := talib.Sma(closes, slow)

	stratReturns := make([]float64, 0, len(rows)-slow)
	for i := slow - 1; i < len(rows)-1; i++ {
		if fastSMA[i] <= slowSMA[i] || closes[i] == 0 {
			stratReturns = append(stratReturns, 0)
			continue
		}
		stratReturns = append(stratReturns, closes[i+1]/closes[i]-1)
	}

	return e.calc.Calculate(stratReturns), nil
}

// periodParam reads an integer period from the parameter set
func periodParam(params types.Params, name string, fallback int) int {
	if v, ok := params[name]; ok && v > 0 {
		return int(v)
	}
	return fallback
}

// targetScore extracts the optimization target from computed metrics.
// Drawdown is non-positive, so maximizing it prefers shallow drawdowns.
func targetScore(m types.PerformanceMetrics, target string) float64 {
	switch target {
	case "return":
		return float64(m.TotalReturn)
	case "drawdown":
		return float64(m.MaxDrawdown)
	default:
		return float64(m.SharpeRatio)
	}
}
