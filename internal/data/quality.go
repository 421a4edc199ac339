package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/validation-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Issue severities, ordered from worst to mildest.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// QualityIssue flags a problem with a single bar or a gap between bars.
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	BarIndex  int       `json:"bar_index"`
	Message   string    `json:"message"`
}

// QualityReport summarizes how trustworthy a historical series is before
// it is fed into a validation run.
type QualityReport struct {
	Symbol    string         `json:"symbol"`
	TotalBars int            `json:"total_bars"`
	Issues    []QualityIssue `json:"issues"`
	Score     int            `json:"score"`
	Usable    bool           `json:"usable"`
	StartDate time.Time      `json:"start_date"`
	EndDate   time.Time      `json:"end_date"`
}

// QualityChecker audits historical series for the defects that most
// distort resampling and walk-forward results: gaps, inconsistent OHLC
// bars, duplicate or unordered timestamps, and extreme bar-to-bar moves.
type QualityChecker struct {
	logger *zap.Logger

	// MaxGapMove is the largest open-to-previous-close move tolerated
	// before a bar is flagged, expressed as a fraction.
	MaxGapMove float64
}

func NewQualityChecker(logger *zap.Logger) *QualityChecker {
	return &QualityChecker{
		logger:     logger,
		MaxGapMove: 0.20,
	}
}

// Check runs every audit over the series and scores the result.
// A score below 70, or any critical issue, marks the series unusable.
func (qc *QualityChecker) Check(symbol string, bars []*types.OHLCV) *QualityReport {
	report := &QualityReport{
		Symbol:    symbol,
		TotalBars: len(bars),
		Issues:    make([]QualityIssue, 0),
	}
	if len(bars) == 0 {
		report.Issues = append(report.Issues, QualityIssue{
			Type:     "NO_DATA",
			Severity: SeverityCritical,
			Message:  "no bars in series",
		})
		return report
	}

	report.StartDate = bars[0].Timestamp
	report.EndDate = bars[len(bars)-1].Timestamp

	report.Issues = append(report.Issues, qc.checkOrder(bars)...)
	report.Issues = append(report.Issues, qc.checkDuplicates(bars)...)
	report.Issues = append(report.Issues, qc.checkGaps(bars)...)
	report.Issues = append(report.Issues, qc.checkBars(bars)...)

	report.Score = scoreIssues(len(bars), report.Issues)
	report.Usable = report.Score >= 70 && !hasCritical(report.Issues)

	qc.logger.Debug("quality check complete",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Int("issues", len(report.Issues)),
		zap.Int("score", report.Score),
	)

	return report
}

func (qc *QualityChecker) checkOrder(bars []*types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp) {
			issues = append(issues, QualityIssue{
				Type:      "OUT_OF_ORDER",
				Severity:  SeverityCritical,
				Timestamp: bars[i].Timestamp,
				BarIndex:  i,
				Message:   "bar precedes its predecessor",
			})
		}
	}
	return issues
}

func (qc *QualityChecker) checkDuplicates(bars []*types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	seen := make(map[int64]int, len(bars))
	for i, bar := range bars {
		ts := bar.Timestamp.UnixNano()
		if first, ok := seen[ts]; ok {
			issues = append(issues, QualityIssue{
				Type:      "DUPLICATE_TIMESTAMP",
				Severity:  SeverityHigh,
				Timestamp: bar.Timestamp,
				BarIndex:  i,
				Message:   fmt.Sprintf("timestamp already seen at index %d", first),
			})
			continue
		}
		seen[ts] = i
	}
	return issues
}

// checkGaps flags intervals far wider than the series' median spacing.
// The median comes from the first ten intervals, which is enough for
// the regular grids the store produces.
func (qc *QualityChecker) checkGaps(bars []*types.OHLCV) []QualityIssue {
	if len(bars) < 2 {
		return nil
	}

	intervals := make([]time.Duration, 0, 10)
	for i := 1; i < len(bars) && i <= 10; i++ {
		intervals = append(intervals, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	expected := intervals[len(intervals)/2]
	if expected <= 0 {
		return nil
	}

	var issues []QualityIssue
	for i := 1; i < len(bars); i++ {
		actual := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if actual <= expected*3 {
			continue
		}
		severity := SeverityMedium
		if actual > expected*10 {
			severity = SeverityHigh
		}
		issues = append(issues, QualityIssue{
			Type:      "GAP_DETECTED",
			Severity:  severity,
			Timestamp: bars[i-1].Timestamp,
			BarIndex:  i - 1,
			Message:   fmt.Sprintf("gap of %s where ~%s expected", actual, expected),
		})
	}
	return issues
}

func (qc *QualityChecker) checkBars(bars []*types.OHLCV) []QualityIssue {
	var issues []QualityIssue
	for i, bar := range bars {
		if bar.Open.LessThanOrEqual(decimal.Zero) ||
			bar.High.LessThanOrEqual(decimal.Zero) ||
			bar.Low.LessThanOrEqual(decimal.Zero) ||
			bar.Close.LessThanOrEqual(decimal.Zero) {
			issues = append(issues, QualityIssue{
				Type:      "NONPOSITIVE_PRICE",
				Severity:  SeverityCritical,
				Timestamp: bar.Timestamp,
				BarIndex:  i,
				Message:   "bar contains a zero or negative price",
			})
			continue
		}

		if bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) || bar.High.LessThan(bar.Low) ||
			bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) {
			issues = append(issues, QualityIssue{
				Type:      "OHLC_INCONSISTENT",
				Severity:  SeverityCritical,
				Timestamp: bar.Timestamp,
				BarIndex:  i,
				Message: fmt.Sprintf("high/low do not bound the bar (O:%s H:%s L:%s C:%s)",
					bar.Open, bar.High, bar.Low, bar.Close),
			})
			continue
		}

		if i > 0 && !bars[i-1].Close.IsZero() {
			move := bar.Open.Sub(bars[i-1].Close).Div(bars[i-1].Close).Abs()
			if mf, _ := move.Float64(); mf > qc.MaxGapMove {
				issues = append(issues, QualityIssue{
					Type:      "EXTREME_MOVE",
					Severity:  SeverityMedium,
					Timestamp: bar.Timestamp,
					BarIndex:  i,
					Message:   fmt.Sprintf("open jumped %s%% from previous close", move.Mul(decimal.NewFromInt(100)).StringFixed(2)),
				})
			}
		}
	}
	return issues
}

// Clean returns a sorted copy of the series with duplicate timestamps
// and defective bars removed. High and low are widened where needed so
// they bound open and close.
func (qc *QualityChecker) Clean(bars []*types.OHLCV) []*types.OHLCV {
	if len(bars) == 0 {
		return bars
	}

	sorted := make([]*types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	cleaned := make([]*types.OHLCV, 0, len(sorted))
	seen := make(map[int64]bool, len(sorted))
	for _, bar := range sorted {
		ts := bar.Timestamp.UnixNano()
		if seen[ts] {
			continue
		}
		seen[ts] = true

		if bar.Open.LessThanOrEqual(decimal.Zero) ||
			bar.High.LessThanOrEqual(decimal.Zero) ||
			bar.Low.LessThanOrEqual(decimal.Zero) ||
			bar.Close.LessThanOrEqual(decimal.Zero) ||
			bar.High.LessThan(bar.Low) {
			continue
		}

		cleaned = append(cleaned, &types.OHLCV{
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      decimal.Max(bar.Open, decimal.Max(bar.High, bar.Close)),
			Low:       decimal.Min(bar.Open, decimal.Min(bar.Low, bar.Close)),
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}

	if removed := len(bars) - len(cleaned); removed > 0 {
		qc.logger.Info("cleaned series",
			zap.Int("kept", len(cleaned)),
			zap.Int("removed", removed),
		)
	}

	return cleaned
}

func scoreIssues(totalBars int, issues []QualityIssue) int {
	if totalBars == 0 {
		return 0
	}

	penalty := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			penalty += 10
		case SeverityHigh:
			penalty += 5
		case SeverityMedium:
			penalty += 2
		default:
			penalty += 0.5
		}
	}

	// Larger series tolerate proportionally more small issues.
	scale := float64(totalBars) / 100
	if scale < 1 {
		scale = 1
	}
	score := 100 - penalty/scale*10
	if score < 0 {
		return 0
	}
	return int(score)
}

func hasCritical(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
