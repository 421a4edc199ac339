// Package regime provides market regime labeling and regime-aware
// validation over labeled segments of a price series.
package regime

import (
	"math"
	"sort"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
)

// Regime labels produced by the built-in detectors
const (
	LabelLowVolatility    = "low_volatility"
	LabelMediumVolatility = "medium_volatility"
	LabelHighVolatility   = "high_volatility"
	LabelUp               = "up"
	LabelDown             = "down"
	LabelSideways         = "sideways"
)

// Detector assigns a regime label to each return observation. The
// result is aligned with the input: labels[j] classifies the rolling
// window ending at return j, and is empty for warmup observations that
// a full window does not yet cover.
type Detector interface {
	Labels(returns []float64) []string
}

// VolatilityDetector classifies each observation by the tertile of its
// rolling return standard deviation: low, medium, or high volatility.
type VolatilityDetector struct {
	Window int
}

// Labels implements Detector
func (d *VolatilityDetector) Labels(returns []float64) []string {
	rolling := rollingStd(returns, d.Window)
	return tertileLabels(rolling, LabelLowVolatility, LabelMediumVolatility, LabelHighVolatility)
}

// TrendDetector classifies each observation by the sign of its rolling
// mean return: positive means up, negative down, and exactly zero
// sideways.
type TrendDetector struct {
	Window int
}

// Labels implements Detector
func (d *TrendDetector) Labels(returns []float64) []string {
	rolling := rollingMean(returns, d.Window)

	labels := make([]string, len(rolling))
	for i, v := range rolling {
		switch {
		case math.IsNaN(v):
		case v > 0:
			labels[i] = LabelUp
		case v < 0:
			labels[i] = LabelDown
		default:
			labels[i] = LabelSideways
		}
	}
	return labels
}

// rollingMean computes the mean over the trailing window ending at each
// index. Entries before the first full window are NaN.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// rollingStd computes the sample standard deviation over the trailing
// window ending at each index. Entries before the first full window
// are NaN.
func rollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = metrics.Std(values[i-window+1 : i+1])
	}
	return out
}

// tertileLabels maps each rolling value to one of three labels using the
// 33rd and 67th percentiles of the valid values as thresholds. NaN
// entries stay unlabeled.
func tertileLabels(rolling []float64, low, mid, high string) []string {
	valid := make([]float64, 0, len(rolling))
	for _, v := range rolling {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	labels := make([]string, len(rolling))
	if len(valid) == 0 {
		return labels
	}

	sort.Float64s(valid)
	p33 := metrics.Percentile(valid, 33)
	p67 := metrics.Percentile(valid, 67)

	for i, v := range rolling {
		switch {
		case math.IsNaN(v):
		case v <= p33:
			labels[i] = low
		case v >= p67:
			labels[i] = high
		default:
			labels[i] = mid
		}
	}
	return labels
}
