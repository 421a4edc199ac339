package walkforward

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/optimization"
	"github.com/atlas-desktop/validation-backend/internal/strategy"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

func testBars(n int, seed int64) []*types.OHLCV {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*types.OHLCV, n)
	price := 100.0
	for i := range bars {
		price *= 1 + 0.0008 + rng.NormFloat64()*0.01
		bars[i] = &types.OHLCV{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Close:     decimal.NewFromFloat(price),
		}
	}
	return bars
}

func newTestScheduler(cfg types.WalkForwardConfig) *Scheduler {
	evaluator := strategy.NewMomentumEvaluator(zap.NewNop(), 252, optimization.Config{Workers: 2})
	return NewScheduler(zap.NewNop(), cfg, evaluator)
}

func testStrategyConfig() types.StrategyConfig {
	return types.StrategyConfig{
		SearchSpace: []types.ParamRange{
			{Name: strategy.ParamFastPeriod, Min: 5, Max: 10, Step: 5, Default: 5},
			{Name: strategy.ParamSlowPeriod, Min: 20, Max: 30, Step: 10, Default: 20},
		},
	}
}

func TestWindowsStepCount(t *testing.T) {
	cases := []struct {
		name    string
		n       int
		initial int
		retrain int
		test    int
		want    int
	}{
		{"exact fit", 300, 100, 50, 50, 4},
		{"one step", 150, 100, 50, 50, 1},
		{"second window does not fit", 199, 100, 50, 50, 1},
		{"too short", 120, 100, 50, 50, 0},
		{"dense retrain", 200, 100, 10, 20, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestScheduler(types.WalkForwardConfig{
				InitialTrainSize: tc.initial,
				RetrainFrequency: tc.retrain,
				TestSize:         tc.test,
			})
			windows, err := s.Windows(tc.n)
			if err != nil {
				t.Fatalf("Windows failed: %v", err)
			}
			if len(windows) != tc.want {
				t.Errorf("expected %d windows, got %d", tc.want, len(windows))
			}
		})
	}
}

func TestWindowsGeometry(t *testing.T) {
	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 100,
		RetrainFrequency: 25,
		TestSize:         50,
	})

	windows, err := s.Windows(400)
	if err != nil {
		t.Fatalf("Windows failed: %v", err)
	}

	for k, w := range windows {
		if w.Train.Start != k*25 {
			t.Errorf("window %d: train starts at %d, want %d", k, w.Train.Start, k*25)
		}
		if w.Train.Len() != 100 {
			t.Errorf("window %d: train length %d, want 100", k, w.Train.Len())
		}
		if w.Test.Start != w.Train.End {
			t.Errorf("window %d: test does not start where train ends", k)
		}
		if w.Test.End > 400 {
			t.Errorf("window %d: test window overruns the series", k)
		}
	}
}

func TestWindowsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		config types.WalkForwardConfig
	}{
		{"zero train", types.WalkForwardConfig{InitialTrainSize: 0, RetrainFrequency: 10, TestSize: 10}},
		{"zero retrain", types.WalkForwardConfig{InitialTrainSize: 100, RetrainFrequency: 0, TestSize: 10}},
		{"zero test", types.WalkForwardConfig{InitialTrainSize: 100, RetrainFrequency: 10, TestSize: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestScheduler(tc.config).Windows(500)
			var invalid *types.InvalidParameterError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidParameterError, got %v", err)
			}
		})
	}
}

func TestRunRecordsStepsInOrder(t *testing.T) {
	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 120,
		RetrainFrequency: 60,
		TestSize:         60,
		Workers:          4,
	})

	result, err := s.Run(context.Background(), testBars(500, 7), testStrategyConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Steps) == 0 {
		t.Fatal("expected recorded steps")
	}
	for i := 1; i < len(result.Steps); i++ {
		if result.Steps[i].Index <= result.Steps[i-1].Index {
			t.Fatal("steps recorded out of window order")
		}
	}
	for _, step := range result.Steps {
		if len(step.Params) == 0 {
			t.Errorf("step %d recorded no parameters", step.Index)
		}
	}
	if result.Aggregate.Steps != len(result.Steps) {
		t.Errorf("aggregate step count %d != %d", result.Aggregate.Steps, len(result.Steps))
	}
	if c := float64(result.Aggregate.Consistency); c < 0 || c > 1 {
		t.Errorf("consistency %v outside [0, 1]", c)
	}
}

func TestRunTooShortSeries(t *testing.T) {
	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 100,
		RetrainFrequency: 50,
		TestSize:         50,
	})

	_, err := s.Run(context.Background(), testBars(120, 3), testStrategyConfig())
	var insufficient *types.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	bars := testBars(450, 21)
	cfg := testStrategyConfig()

	serial := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 120, RetrainFrequency: 60, TestSize: 60, Workers: 1,
	})
	parallel := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 120, RetrainFrequency: 60, TestSize: 60, Workers: 8,
	})

	a, err := serial.Run(context.Background(), bars, cfg)
	if err != nil {
		t.Fatalf("serial run failed: %v", err)
	}
	b, err := parallel.Run(context.Background(), bars, cfg)
	if err != nil {
		t.Fatalf("parallel run failed: %v", err)
	}

	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if a.Steps[i].TestMetrics != b.Steps[i].TestMetrics {
			t.Fatalf("step %d metrics differ across worker counts", i)
		}
	}
}

func TestRunMonteCarloCrossRunStats(t *testing.T) {
	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 120,
		RetrainFrequency: 120,
		TestSize:         60,
	})

	result, err := s.RunMonteCarlo(context.Background(), testBars(320, 5), testStrategyConfig(), types.MonteCarloConfig{
		Trials:    5,
		Seed:      13,
		BlockSize: 20,
	})
	if err != nil {
		t.Fatalf("RunMonteCarlo failed: %v", err)
	}

	if len(result.Runs)+result.Skipped != 5 {
		t.Errorf("runs (%d) plus skipped (%d) should equal 5", len(result.Runs), result.Skipped)
	}
	if float64(result.WorstDrawdown) > 0 {
		t.Errorf("worst drawdown %v should not be positive", float64(result.WorstDrawdown))
	}
}

func TestRunMonteCarloInvalidTrials(t *testing.T) {
	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 100, RetrainFrequency: 50, TestSize: 50,
	})

	_, err := s.RunMonteCarlo(context.Background(), testBars(300, 1), testStrategyConfig(), types.MonteCarloConfig{Trials: 0})
	var invalid *types.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidParameterError, got %v", err)
	}
}

func TestRunByRegimeSegmentsIndependently(t *testing.T) {
	// Three long volatility tiers so the tertile thresholds fall between
	// tiers and each tier forms one large contiguous segment.
	rng := rand.New(rand.NewSource(17))
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*types.OHLCV, 1200)
	price := 100.0
	for i := range bars {
		std := 0.002
		switch {
		case i >= 800:
			std = 0.05
		case i >= 400:
			std = 0.012
		}
		price *= 1 + rng.NormFloat64()*std
		bars[i] = &types.OHLCV{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Close:     decimal.NewFromFloat(price),
		}
	}

	s := newTestScheduler(types.WalkForwardConfig{
		InitialTrainSize: 60,
		RetrainFrequency: 30,
		TestSize:         30,
	})

	result, err := s.RunByRegime(context.Background(), bars, testStrategyConfig(), types.RegimeConfig{
		Detector: "volatility",
		Window:   20,
	})
	if err != nil {
		t.Fatalf("RunByRegime failed: %v", err)
	}
	if len(result.Segments) == 0 {
		t.Fatal("expected at least one segment result")
	}
	for key, wf := range result.Segments {
		if len(wf.Steps) == 0 {
			t.Errorf("segment %q recorded no steps", key)
		}
	}
}
