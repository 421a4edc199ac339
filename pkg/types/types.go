// Package types provides shared type definitions for the validation backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe represents bar timeframes
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// OHLCV represents a single candlestick
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PerformanceMetrics summarizes a return sequence.
// Volatility is never negative, MaxDrawdown is never positive, and
// SharpeRatio is 0 (not NaN) when volatility is 0. Fields are Float so
// any non-finite value serializes as null rather than breaking JSON.
type PerformanceMetrics struct {
	TotalReturn Float `json:"totalReturn"`
	Volatility  Float `json:"volatility"`
	SharpeRatio Float `json:"sharpeRatio"`
	MaxDrawdown Float `json:"maxDrawdown"`
	WinRate     Float `json:"winRate"`
}

// IndexRange is a half-open [Start, End) row range
type IndexRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of rows in the range
func (r IndexRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// ValidationSplit is a paired train/test index range
type ValidationSplit struct {
	Train IndexRange `json:"train"`
	Test  IndexRange `json:"test"`
}

// Params holds named strategy parameter values
type Params map[string]float64

// Clone returns an independent copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SimulationTrial is one synthetic return path and its metrics.
// Trials are values and never mutated after creation.
type SimulationTrial struct {
	Index   int                `json:"index"`
	Returns []float64          `json:"-"`
	Metrics PerformanceMetrics `json:"metrics"`
}

// AggregateStatistics is an order-independent summary over one metric.
// The confidence interval bounds are the 2.5th/97.5th percentiles.
type AggregateStatistics struct {
	Count   int   `json:"count"`
	Mean    Float `json:"mean"`
	Std     Float `json:"std"`
	Min     Float `json:"min"`
	Max     Float `json:"max"`
	P05     Float `json:"p05"`
	P95     Float `json:"p95"`
	CILower Float `json:"ciLower"`
	CIUpper Float `json:"ciUpper"`
}

// MetricsSummary aggregates each performance metric across trials
type MetricsSummary struct {
	TotalReturn AggregateStatistics `json:"totalReturn"`
	Volatility  AggregateStatistics `json:"volatility"`
	SharpeRatio AggregateStatistics `json:"sharpeRatio"`
	MaxDrawdown AggregateStatistics `json:"maxDrawdown"`
	WinRate     AggregateStatistics `json:"winRate"`
}

// MonteCarloRunResult holds the trials and their aggregate
type MonteCarloRunResult struct {
	Trials    []SimulationTrial `json:"trials"`
	Aggregate MetricsSummary    `json:"aggregate"`
	Skipped   int               `json:"skipped"`
}

// BootstrapSample is one resampled series and its metrics
type BootstrapSample struct {
	Index   int                `json:"index"`
	Metrics PerformanceMetrics `json:"metrics"`
}

// BootstrapRunResult holds the samples and their aggregate
type BootstrapRunResult struct {
	Samples   []BootstrapSample `json:"samples"`
	Aggregate MetricsSummary    `json:"aggregate"`
	Skipped   int               `json:"skipped"`
}

// FoldResult holds train and test metrics for a single fold
type FoldResult struct {
	Index        int                `json:"index"`
	Split        ValidationSplit    `json:"split"`
	TrainMetrics PerformanceMetrics `json:"trainMetrics"`
	TestMetrics  PerformanceMetrics `json:"testMetrics"`
}

// CrossValidationAnalysis compares train and test performance across folds
type CrossValidationAnalysis struct {
	OverfittingRatio Float `json:"overfittingRatio"`
	TrainReturnMean  Float `json:"trainReturnMean"`
	TrainReturnStd   Float `json:"trainReturnStd"`
	TestReturnMean   Float `json:"testReturnMean"`
	TestReturnStd    Float `json:"testReturnStd"`
	TrainSharpeMean  Float `json:"trainSharpeMean"`
	TestSharpeMean   Float `json:"testSharpeMean"`
}

// CrossValidationResult holds per-fold metrics and the overall analysis
type CrossValidationResult struct {
	Folds    []FoldResult            `json:"folds"`
	Analysis CrossValidationAnalysis `json:"analysis"`
	Skipped  int                     `json:"skipped"`
}

// RegimeSegment is a labeled subset of series rows. Indices refer to the
// original series and are not necessarily contiguous.
type RegimeSegment struct {
	Label   string   `json:"label"`
	Indices []int    `json:"indices"`
	Rows    []*OHLCV `json:"-"`
}

// RegimeAwareResult maps each retained segment label to its result
type RegimeAwareResult struct {
	Segments map[string]*MonteCarloRunResult `json:"segments"`
	Excluded map[string]int                  `json:"excluded"`
}

// WalkForwardStep records one completed rolling iteration
type WalkForwardStep struct {
	Index       int                `json:"index"`
	Split       ValidationSplit    `json:"split"`
	Params      Params             `json:"params"`
	TestMetrics PerformanceMetrics `json:"testMetrics"`
}

// WalkForwardAggregate summarizes out-of-sample performance across steps.
// Consistency is the fraction of steps with a positive Sharpe ratio.
type WalkForwardAggregate struct {
	Steps         int   `json:"steps"`
	Skipped       int   `json:"skipped"`
	AvgReturn     Float `json:"avgReturn"`
	StdReturn     Float `json:"stdReturn"`
	AvgSharpe     Float `json:"avgSharpe"`
	StdSharpe     Float `json:"stdSharpe"`
	AvgDrawdown   Float `json:"avgDrawdown"`
	WorstDrawdown Float `json:"worstDrawdown"`
	Consistency   Float `json:"consistency"`
}

// WalkForwardResult holds the recorded steps and their aggregate
type WalkForwardResult struct {
	Steps     []WalkForwardStep    `json:"steps"`
	Aggregate WalkForwardAggregate `json:"aggregate"`
}

// MonteCarloWalkForwardResult aggregates full scheduler runs over
// bootstrap-resampled copies of the input
type MonteCarloWalkForwardResult struct {
	Runs          []WalkForwardAggregate `json:"runs"`
	MeanAvgReturn Float                  `json:"meanAvgReturn"`
	StdAvgReturn  Float                  `json:"stdAvgReturn"`
	MeanAvgSharpe Float                  `json:"meanAvgSharpe"`
	StdAvgSharpe  Float                  `json:"stdAvgSharpe"`
	WorstDrawdown Float                  `json:"worstDrawdown"`
	Skipped       int                    `json:"skipped"`
}

// RegimeWalkForwardResult maps each retained segment label to an
// independent walk-forward result
type RegimeWalkForwardResult struct {
	Segments map[string]*WalkForwardResult `json:"segments"`
	Excluded map[string]int                `json:"excluded"`
}
