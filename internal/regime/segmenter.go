package regime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/montecarlo"
	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// DefaultMinSegmentSize is the smallest segment worth validating in
// isolation
const DefaultMinSegmentSize = 10

// Segmenter partitions a price series into regime-labeled segments and
// runs validation independently per segment.
type Segmenter struct {
	logger *zap.Logger
	config types.RegimeConfig
}

// NewSegmenter creates a regime segmenter
func NewSegmenter(logger *zap.Logger, config types.RegimeConfig) *Segmenter {
	if config.MinSegmentSize <= 0 {
		config.MinSegmentSize = DefaultMinSegmentSize
	}
	return &Segmenter{logger: logger, config: config}
}

// detector selects the labeling strategy from the configuration
func (s *Segmenter) detector() Detector {
	if s.config.Detector == "trend" {
		return &TrendDetector{Window: s.config.Window}
	}
	return &VolatilityDetector{Window: s.config.Window}
}

// Segment labels every coverable row of the series and groups rows into
// segments. The rolling statistic over the window ending at return j
// labels row j+1; warmup rows before the first full window belong to no
// segment. By default rows with the same label form one segment even
// when they are not adjacent; with Contiguous set, each maximal run of
// identically-labeled rows becomes its own segment. Segments smaller
// than the minimum size are dropped and reported in the returned map as
// excluded row counts per label.
func (s *Segmenter) Segment(bars []*types.OHLCV) ([]types.RegimeSegment, map[string]int, error) {
	if s.config.Window < 2 {
		return nil, nil, &types.InvalidParameterError{Param: "window", Reason: "must be at least 2"}
	}

	returns := series.Returns(bars)
	if len(returns) < s.config.Window {
		return nil, nil, &types.InsufficientDataError{
			Op:   "regime segmentation",
			Need: s.config.Window + 1,
			Got:  len(bars),
		}
	}

	labels := s.detector().Labels(returns)

	var groups []labeledRows
	if s.config.Contiguous {
		groups = contiguousRuns(labels)
	} else {
		groups = labelGroups(labels)
	}

	segments := make([]types.RegimeSegment, 0, len(groups))
	excluded := make(map[string]int)
	for _, g := range groups {
		if len(g.rows) < s.config.MinSegmentSize {
			excluded[g.label] += len(g.rows)
			continue
		}
		segments = append(segments, types.RegimeSegment{
			Label:   g.label,
			Indices: g.rows,
			Rows:    series.Subset(bars, g.rows),
		})
	}

	s.logger.Info("segmented series by regime",
		zap.String("detector", s.config.Detector),
		zap.Int("window", s.config.Window),
		zap.Int("segments", len(segments)),
		zap.Int("excluded_labels", len(excluded)))

	return segments, excluded, nil
}

// Run segments the series and runs an independent Monte Carlo
// simulation per retained segment
func (s *Segmenter) Run(ctx context.Context, bars []*types.OHLCV, mc types.MonteCarloConfig) (*types.RegimeAwareResult, error) {
	segments, excluded, err := s.Segment(bars)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	start := time.Now()
	results := make(map[string]*types.MonteCarloRunResult, len(segments))
	for i, seg := range segments {
		key := seg.Label
		if s.config.Contiguous {
			key = fmt.Sprintf("%s_%d", seg.Label, i)
		}

		sim := montecarlo.NewSimulator(s.logger.With(zap.String("segment", key)), mc)
		result, err := sim.Run(ctx, series.Returns(seg.Rows))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping segment",
				zap.String("segment", key),
				zap.Int("rows", len(seg.Rows)),
				zap.Error(&types.CollaboratorError{Op: "monte carlo for segment " + key, Err: err}))
			excluded[seg.Label] += len(seg.Rows)
			continue
		}
		results[key] = result
	}
	if len(results) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	s.logger.Info("regime-aware validation complete",
		zap.Int("segments", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return &types.RegimeAwareResult{Segments: results, Excluded: excluded}, nil
}

type labeledRows struct {
	label string
	rows  []int
}

// labelGroups gathers row indices by label, in order of first
// appearance. Return j labels row j+1.
func labelGroups(labels []string) []labeledRows {
	order := make([]string, 0, 3)
	byLabel := make(map[string][]int)
	for j, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := byLabel[label]; !ok {
			order = append(order, label)
		}
		byLabel[label] = append(byLabel[label], j+1)
	}

	groups := make([]labeledRows, 0, len(order))
	for _, label := range order {
		groups = append(groups, labeledRows{label: label, rows: byLabel[label]})
	}
	return groups
}

// contiguousRuns splits the labeled rows into maximal runs of identical
// labels
func contiguousRuns(labels []string) []labeledRows {
	var groups []labeledRows
	for j, label := range labels {
		if label == "" {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].label == label &&
			groups[n-1].rows[len(groups[n-1].rows)-1] == j {
			groups[n-1].rows = append(groups[n-1].rows, j+1)
			continue
		}
		groups = append(groups, labeledRows{label: label, rows: []int{j + 1}})
	}
	return groups
}
