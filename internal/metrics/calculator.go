// Package metrics provides performance metrics calculation and aggregation.
package metrics

import (
	"math"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// DefaultPeriodsPerYear annualizes daily-resolution returns
const DefaultPeriodsPerYear = 252

// Calculator converts a return sequence into performance metrics
type Calculator struct {
	periodsPerYear float64
}

// NewCalculator creates a calculator. periodsPerYear <= 0 selects the
// daily default of 252.
func NewCalculator(periodsPerYear int) *Calculator {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	return &Calculator{periodsPerYear: float64(periodsPerYear)}
}

// Calculate computes performance metrics for a return sequence. Degenerate
// input (empty or zero-variance) yields zero-valued metrics and never an
// error or a NaN.
func (c *Calculator) Calculate(returns []float64) types.PerformanceMetrics {
	if len(returns) == 0 {
		return types.PerformanceMetrics{}
	}

	// Cumulative growth, running peak, and drawdown in a single pass
	cum := 1.0
	peak := 1.0
	maxDD := 0.0
	wins := 0

	for _, r := range returns {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		} else if peak > 0 {
			dd := (cum - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
		if r > 0 {
			wins++
		}
	}

	mean := Mean(returns)
	std := Std(returns)

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(c.periodsPerYear)
	}

	return types.PerformanceMetrics{
		TotalReturn: types.Float(cum - 1),
		Volatility:  types.Float(std * math.Sqrt(c.periodsPerYear)),
		SharpeRatio: types.Float(sharpe),
		MaxDrawdown: types.Float(maxDD),
		WinRate:     types.Float(float64(wins) / float64(len(returns))),
	}
}

// Mean calculates the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std calculates the sample standard deviation
func Std(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
