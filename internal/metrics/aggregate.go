package metrics

import (
	"math"
	"sort"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Summarize computes order-independent aggregate statistics over one metric.
// The confidence interval is the 2.5th/97.5th percentile band.
func Summarize(values []float64) types.AggregateStatistics {
	if len(values) == 0 {
		return types.AggregateStatistics{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return types.AggregateStatistics{
		Count:   len(values),
		Mean:    types.Float(Mean(values)),
		Std:     types.Float(Std(values)),
		Min:     types.Float(sorted[0]),
		Max:     types.Float(sorted[len(sorted)-1]),
		P05:     types.Float(Percentile(sorted, 5)),
		P95:     types.Float(Percentile(sorted, 95)),
		CILower: types.Float(Percentile(sorted, 2.5)),
		CIUpper: types.Float(Percentile(sorted, 97.5)),
	}
}

// SummarizeMetrics aggregates each performance metric across a set of
// per-trial metrics
func SummarizeMetrics(ms []types.PerformanceMetrics) types.MetricsSummary {
	n := len(ms)
	totalReturn := make([]float64, n)
	volatility := make([]float64, n)
	sharpe := make([]float64, n)
	drawdown := make([]float64, n)
	winRate := make([]float64, n)

	for i, m := range ms {
		totalReturn[i] = float64(m.TotalReturn)
		volatility[i] = float64(m.Volatility)
		sharpe[i] = float64(m.SharpeRatio)
		drawdown[i] = float64(m.MaxDrawdown)
		winRate[i] = float64(m.WinRate)
	}

	return types.MetricsSummary{
		TotalReturn: Summarize(totalReturn),
		Volatility:  Summarize(volatility),
		SharpeRatio: Summarize(sharpe),
		MaxDrawdown: Summarize(drawdown),
		WinRate:     Summarize(winRate),
	}
}

// Percentile calculates the pth percentile of sorted values with linear
// interpolation between ranks
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
