// Package crossval provides cross-validation fold construction and
// train/test performance comparison.
package crossval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Splitter constructs validation folds and scores each fold's train and
// test windows independently.
type Splitter struct {
	logger *zap.Logger
	calc   *metrics.Calculator
	config types.CrossValidationConfig
}

// NewSplitter creates a cross-validation splitter
func NewSplitter(logger *zap.Logger, config types.CrossValidationConfig) *Splitter {
	return &Splitter{
		logger: logger,
		calc:   metrics.NewCalculator(config.PeriodsPerYear),
		config: config,
	}
}

// Splits constructs the fold boundaries for a series of n rows.
//
// time_series folds grow the training window: fold i trains on
// [0, (i+1)*foldSize) and tests on the following foldSize rows, so the
// test window never precedes any training row. k_fold uses equal test
// folds and trains on every row outside the test fold; its recorded
// train range spans the whole series with the test fold carved out.
func (s *Splitter) Splits(n int) ([]types.ValidationSplit, error) {
	if s.config.Folds < 2 {
		return nil, &types.InvalidParameterError{Param: "folds", Reason: "must be at least 2"}
	}

	switch s.config.Method {
	case types.MethodKFold:
		foldSize := n / s.config.Folds
		if foldSize == 0 {
			return nil, &types.InsufficientDataError{Op: "k-fold split", Need: s.config.Folds, Got: n}
		}
		splits := make([]types.ValidationSplit, s.config.Folds)
		for i := range splits {
			splits[i] = types.ValidationSplit{
				Train: types.IndexRange{Start: 0, End: n},
				Test:  types.IndexRange{Start: i * foldSize, End: (i + 1) * foldSize},
			}
		}
		return splits, nil

	default: // time_series
		foldSize := n / (s.config.Folds + 1)
		if foldSize == 0 {
			return nil, &types.InsufficientDataError{Op: "time-series split", Need: s.config.Folds + 1, Got: n}
		}
		splits := make([]types.ValidationSplit, s.config.Folds)
		for i := range splits {
			splits[i] = types.ValidationSplit{
				Train: types.IndexRange{Start: 0, End: (i + 1) * foldSize},
				Test:  types.IndexRange{Start: (i + 1) * foldSize, End: (i + 2) * foldSize},
			}
		}
		return splits, nil
	}
}

// Run scores every fold of the series and compares train and test
// performance. Folds whose train or test window yields no usable
// returns are skipped; the run fails only when every fold is skipped.
func (s *Splitter) Run(ctx context.Context, bars []*types.OHLCV) (*types.CrossValidationResult, error) {
	splits, err := s.Splits(len(bars))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logger.Info("starting cross-validation",
		zap.Int("folds", len(splits)),
		zap.String("method", string(s.config.Method)),
		zap.Int("rows", len(bars)))

	folds := make([]types.FoldResult, 0, len(splits))
	skipped := 0
	for i, split := range splits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trainReturns := s.trainReturns(bars, split)
		testReturns := series.Returns(series.Slice(bars, split.Test))
		if len(trainReturns) == 0 || len(testReturns) == 0 {
			skipped++
			s.logger.Warn("skipping fold with empty return window", zap.Int("fold", i))
			continue
		}

		folds = append(folds, types.FoldResult{
			Index:        i,
			Split:        split,
			TrainMetrics: s.calc.Calculate(trainReturns),
			TestMetrics:  s.calc.Calculate(testReturns),
		})
	}
	if len(folds) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	s.logger.Info("cross-validation complete",
		zap.Int("folds", len(folds)),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)))

	return &types.CrossValidationResult{
		Folds:    folds,
		Analysis: analyze(folds),
		Skipped:  skipped,
	}, nil
}

// trainReturns derives the training return sequence for a fold. For
// k_fold the training rows are every row outside the test fold, joined
// in chronological order.
func (s *Splitter) trainReturns(bars []*types.OHLCV, split types.ValidationSplit) []float64 {
	if s.config.Method != types.MethodKFold {
		return series.Returns(series.Slice(bars, split.Train))
	}

	indices := make([]int, 0, len(bars)-split.Test.Len())
	for i := range bars {
		if i < split.Test.Start || i >= split.Test.End {
			indices = append(indices, i)
		}
	}
	return series.Returns(series.Subset(bars, indices))
}

// analyze compares train and test performance across completed folds.
// The overfitting ratio is mean train return over mean test return, or
// 0 when the test mean is 0.
func analyze(folds []types.FoldResult) types.CrossValidationAnalysis {
	trainReturns := make([]float64, len(folds))
	testReturns := make([]float64, len(folds))
	trainSharpes := make([]float64, len(folds))
	testSharpes := make([]float64, len(folds))
	for i, f := range folds {
		trainReturns[i] = float64(f.TrainMetrics.TotalReturn)
		testReturns[i] = float64(f.TestMetrics.TotalReturn)
		trainSharpes[i] = float64(f.TrainMetrics.SharpeRatio)
		testSharpes[i] = float64(f.TestMetrics.SharpeRatio)
	}

	analysis := types.CrossValidationAnalysis{
		TrainReturnMean: types.Float(metrics.Mean(trainReturns)),
		TrainReturnStd:  types.Float(metrics.Std(trainReturns)),
		TestReturnMean:  types.Float(metrics.Mean(testReturns)),
		TestReturnStd:   types.Float(metrics.Std(testReturns)),
		TrainSharpeMean: types.Float(metrics.Mean(trainSharpes)),
		TestSharpeMean:  types.Float(metrics.Mean(testSharpes)),
	}
	if analysis.TestReturnMean != 0 {
		analysis.OverfittingRatio = analysis.TrainReturnMean / analysis.TestReturnMean
	}
	return analysis
}
