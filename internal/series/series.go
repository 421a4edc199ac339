// Package series provides derivation and slicing of historical price series.
package series

import (
	"fmt"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Validate checks that bars form a usable historical series: non-empty,
// strictly increasing unique timestamps, and positive close prices.
func Validate(bars []*types.OHLCV) error {
	if len(bars) == 0 {
		return &types.InvalidParameterError{Param: "series", Reason: "empty series"}
	}

	for i, bar := range bars {
		if bar == nil {
			return fmt.Errorf("series row %d is nil", i)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(bar.Timestamp) {
			return fmt.Errorf("series timestamps not strictly increasing at row %d (%s >= %s)",
				i, bars[i-1].Timestamp, bar.Timestamp)
		}
		if bar.Close.IsNegative() {
			return fmt.Errorf("series row %d has negative close", i)
		}
	}

	return nil
}

// Returns derives the periodic simple-return sequence from close prices.
// The result has length len(bars)-1; rows following a zero close are
// skipped rather than producing an infinite return.
func Returns(bars []*types.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev.IsZero() {
			continue
		}
		ret := bars[i].Close.Sub(prev).Div(prev)
		rf, _ := ret.Float64()
		returns = append(returns, rf)
	}

	return returns
}

// Closes extracts close prices as float64 values
func Closes(bars []*types.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
	}
	return closes
}

// Slice returns the rows in the half-open range r, clamped to bounds
func Slice(bars []*types.OHLCV, r types.IndexRange) []*types.OHLCV {
	start, end := r.Start, r.End
	if start < 0 {
		start = 0
	}
	if end > len(bars) {
		end = len(bars)
	}
	if start >= end {
		return nil
	}
	return bars[start:end]
}

// Subset gathers the rows at the given original-series indices, in the
// order supplied
func Subset(bars []*types.OHLCV, indices []int) []*types.OHLCV {
	out := make([]*types.OHLCV, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(bars) {
			out = append(out, bars[idx])
		}
	}
	return out
}
