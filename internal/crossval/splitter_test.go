package crossval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

func testBars(n int) []*types.OHLCV {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*types.OHLCV, n)
	price := 100.0
	for i := range bars {
		if i%2 == 0 {
			price *= 1.005
		} else {
			price *= 0.999
		}
		bars[i] = &types.OHLCV{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Close:     decimal.NewFromFloat(price),
		}
	}
	return bars
}

func TestTimeSeriesSplitsNoLookahead(t *testing.T) {
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{
		Folds:  5,
		Method: types.MethodTimeSeries,
	})

	splits, err := s.Splits(120)
	if err != nil {
		t.Fatalf("Splits failed: %v", err)
	}
	if len(splits) != 5 {
		t.Fatalf("expected 5 splits, got %d", len(splits))
	}

	for i, split := range splits {
		if split.Test.Start != split.Train.End {
			t.Errorf("fold %d: test starts at %d, train ends at %d",
				i, split.Test.Start, split.Train.End)
		}
		if split.Train.Start != 0 {
			t.Errorf("fold %d: train should start at 0, got %d", i, split.Train.Start)
		}
		if i > 0 && split.Train.End <= splits[i-1].Train.End {
			t.Errorf("fold %d: training window did not grow", i)
		}
	}
}

func TestKFoldSplitsCoverSeries(t *testing.T) {
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{
		Folds:  4,
		Method: types.MethodKFold,
	})

	splits, err := s.Splits(100)
	if err != nil {
		t.Fatalf("Splits failed: %v", err)
	}

	covered := make(map[int]bool)
	for _, split := range splits {
		for i := split.Test.Start; i < split.Test.End; i++ {
			if covered[i] {
				t.Fatalf("row %d appears in more than one test fold", i)
			}
			covered[i] = true
		}
	}
	if len(covered) != 100 {
		t.Errorf("test folds cover %d rows, expected 100", len(covered))
	}
}

func TestSplitsInvalidFolds(t *testing.T) {
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{Folds: 1})

	_, err := s.Splits(100)
	var invalid *types.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidParameterError, got %v", err)
	}
}

func TestSplitsInsufficientRows(t *testing.T) {
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{
		Folds:  5,
		Method: types.MethodTimeSeries,
	})

	_, err := s.Splits(4)
	var insufficient *types.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestRunProducesFoldMetrics(t *testing.T) {
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{
		Folds:  4,
		Method: types.MethodTimeSeries,
	})

	result, err := s.Run(context.Background(), testBars(200))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Folds) != 4 {
		t.Fatalf("expected 4 folds, got %d", len(result.Folds))
	}

	for _, fold := range result.Folds {
		if fold.TrainMetrics.Volatility < 0 || fold.TestMetrics.Volatility < 0 {
			t.Errorf("fold %d: negative volatility", fold.Index)
		}
		if fold.TrainMetrics.MaxDrawdown > 0 || fold.TestMetrics.MaxDrawdown > 0 {
			t.Errorf("fold %d: positive max drawdown", fold.Index)
		}
	}
	if result.Analysis.TestReturnMean == 0 && result.Analysis.OverfittingRatio != 0 {
		t.Error("overfitting ratio should be 0 when test mean is 0")
	}
}

func TestRunKFoldTrainExcludesTestFold(t *testing.T) {
	bars := testBars(100)
	s := NewSplitter(zap.NewNop(), types.CrossValidationConfig{
		Folds:  4,
		Method: types.MethodKFold,
	})

	result, err := s.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, fold := range result.Folds {
		// 75 training rows yield 74 returns; the seam between the rows
		// before and after the test fold joins into one return.
		trainRows := len(bars) - fold.Split.Test.Len()
		got := s.trainReturns(bars, fold.Split)
		if len(got) != trainRows-1 {
			t.Errorf("fold %d: expected %d training returns, got %d",
				fold.Index, trainRows-1, len(got))
		}
	}
}
