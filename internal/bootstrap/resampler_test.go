package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

func testBars(closes []float64) []*types.OHLCV {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*types.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = &types.OHLCV{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Close:     decimal.NewFromFloat(c),
		}
	}
	return bars
}

func driftBars(n int) []*types.OHLCV {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		if i%3 == 0 {
			price *= 1.01
		} else {
			price *= 0.998
		}
		closes[i] = price
	}
	return testBars(closes)
}

func TestResamplerSampleCount(t *testing.T) {
	r := NewResampler(zap.NewNop(), types.BootstrapConfig{
		Samples:  200,
		Fraction: 0.8,
		Seed:     17,
	})

	result, err := r.Run(context.Background(), driftBars(120))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Samples) != 200 {
		t.Errorf("expected 200 samples, got %d", len(result.Samples))
	}
	if result.Skipped != 0 {
		t.Errorf("expected no skipped samples, got %d", result.Skipped)
	}
}

func TestResamplerInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		config types.BootstrapConfig
		param  string
	}{
		{"zero samples", types.BootstrapConfig{Samples: 0, Fraction: 0.5}, "samples"},
		{"zero fraction", types.BootstrapConfig{Samples: 10, Fraction: 0}, "fraction"},
		{"fraction above one", types.BootstrapConfig{Samples: 10, Fraction: 1.5}, "fraction"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResampler(zap.NewNop(), tc.config).Run(context.Background(), driftBars(50))
			var invalid *types.InvalidParameterError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidParameterError, got %v", err)
			}
			if invalid.Param != tc.param {
				t.Errorf("expected parameter %q, got %q", tc.param, invalid.Param)
			}
		})
	}
}

func TestResamplerTinySeriesAllSkipped(t *testing.T) {
	// One row per sample yields no returns, so every sample is skipped.
	r := NewResampler(zap.NewNop(), types.BootstrapConfig{
		Samples:  5,
		Fraction: 1.0,
		Seed:     3,
	})

	_, err := r.Run(context.Background(), testBars([]float64{100}))
	if !errors.Is(err, types.ErrNoSuccessfulItems) {
		t.Fatalf("expected ErrNoSuccessfulItems, got %v", err)
	}
}

func TestResamplerDeterministic(t *testing.T) {
	bars := driftBars(80)
	cfg := types.BootstrapConfig{Samples: 50, Fraction: 0.9, Seed: 99, Workers: 4}

	first, err := NewResampler(zap.NewNop(), cfg).Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := NewResampler(zap.NewNop(), cfg).Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	for i := range first.Samples {
		if first.Samples[i].Metrics != second.Samples[i].Metrics {
			t.Fatalf("sample %d differs across seeded runs", i)
		}
	}
}

func TestResamplerConfidenceIntervalBracketsMean(t *testing.T) {
	r := NewResampler(zap.NewNop(), types.BootstrapConfig{
		Samples:  500,
		Fraction: 1.0,
		Seed:     42,
	})

	result, err := r.Run(context.Background(), driftBars(252))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	agg := result.Aggregate.TotalReturn
	if agg.CILower > agg.Mean || agg.CIUpper < agg.Mean {
		t.Errorf("confidence interval [%v, %v] does not bracket mean %v",
			agg.CILower, agg.CIUpper, agg.Mean)
	}
	if agg.Min > agg.P05 || agg.P95 > agg.Max {
		t.Error("percentiles outside min/max bounds")
	}
}
