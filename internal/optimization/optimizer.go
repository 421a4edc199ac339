// Package optimization provides grid-search selection of strategy
// parameters against an arbitrary objective.
package optimization

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/workers"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// ObjectiveFunc scores one parameter combination. Higher is better.
type ObjectiveFunc func(ctx context.Context, params types.Params) (float64, error)

// Evaluation is one scored parameter combination
type Evaluation struct {
	Params types.Params `json:"params"`
	Score  float64      `json:"score"`
}

// Result holds the best combination and every completed evaluation
type Result struct {
	BestParams  types.Params `json:"bestParams"`
	BestScore   float64      `json:"bestScore"`
	Evaluations []Evaluation `json:"evaluations"`
	Skipped     int          `json:"skipped"`
}

// Config configures the optimizer. SingleAxis restricts the search to
// one parameter at a time with the others held at their defaults,
// trading thoroughness for a much smaller grid.
type Config struct {
	Workers    int  `json:"workers" mapstructure:"workers"`
	SingleAxis bool `json:"singleAxis" mapstructure:"single_axis"`
}

// Optimizer performs exhaustive grid search over a parameter space
type Optimizer struct {
	logger *zap.Logger
	config Config
}

// NewOptimizer creates a grid-search optimizer
func NewOptimizer(logger *zap.Logger, config Config) *Optimizer {
	return &Optimizer{logger: logger, config: config}
}

// GridSearch evaluates every combination of the search space in
// parallel and returns the highest-scoring one. Ties resolve to the
// combination generated first, so results are independent of worker
// scheduling. Combinations whose objective fails are skipped; the
// search fails only when every combination is skipped.
func (o *Optimizer) GridSearch(ctx context.Context, space []types.ParamRange, objective ObjectiveFunc) (*Result, error) {
	grid, err := gridValues(space)
	if err != nil {
		return nil, err
	}

	var combos []types.Params
	if o.config.SingleAxis {
		combos = singleAxisCombinations(space, grid)
	} else {
		combos = cartesianProduct(space, grid, 0, make(types.Params))
	}

	start := time.Now()
	o.logger.Info("starting grid search",
		zap.Int("combinations", len(combos)),
		zap.Bool("single_axis", o.config.SingleAxis))

	scores := make([]*float64, len(combos))
	pool := workers.NewPool(o.logger, o.config.Workers)
	stats, err := pool.Run(ctx, len(combos), func(ctx context.Context, idx int) error {
		score, err := objective(ctx, combos[idx])
		if err != nil {
			return err
		}
		scores[idx] = &score
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		BestScore:   math.Inf(-1),
		Evaluations: make([]Evaluation, 0, len(combos)),
		Skipped:     stats.Skipped(),
	}
	for i, score := range scores {
		if score == nil {
			continue
		}
		result.Evaluations = append(result.Evaluations, Evaluation{Params: combos[i], Score: *score})
		if *score > result.BestScore {
			result.BestScore = *score
			result.BestParams = combos[i]
		}
	}
	if len(result.Evaluations) == 0 {
		return nil, types.ErrNoSuccessfulItems
	}

	o.logger.Info("grid search complete",
		zap.Int("evaluated", len(result.Evaluations)),
		zap.Int("skipped", result.Skipped),
		zap.Float64("best_score", result.BestScore),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// gridValues expands each range into its concrete axis values
func gridValues(space []types.ParamRange) ([][]float64, error) {
	if len(space) == 0 {
		return nil, &types.InvalidParameterError{Param: "search_space", Reason: "empty"}
	}

	grid := make([][]float64, len(space))
	for i, r := range space {
		if r.Step <= 0 {
			return nil, &types.InvalidParameterError{Param: r.Name, Reason: "step must be positive"}
		}
		if r.Max < r.Min {
			return nil, &types.InvalidParameterError{Param: r.Name, Reason: "max below min"}
		}

		// Count-based expansion avoids accumulating float error across
		// the axis.
		n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
		values := make([]float64, n)
		for j := range values {
			values[j] = r.Min + float64(j)*r.Step
		}
		grid[i] = values
	}
	return grid, nil
}

// cartesianProduct generates every joint combination recursively
func cartesianProduct(space []types.ParamRange, grid [][]float64, idx int, current types.Params) []types.Params {
	if idx == len(space) {
		return []types.Params{current.Clone()}
	}

	var combos []types.Params
	for _, v := range grid[idx] {
		current[space[idx].Name] = v
		combos = append(combos, cartesianProduct(space, grid, idx+1, current)...)
	}
	return combos
}

// singleAxisCombinations varies one parameter per combination, holding
// the others at their configured defaults
func singleAxisCombinations(space []types.ParamRange, grid [][]float64) []types.Params {
	defaults := make(types.Params, len(space))
	for _, r := range space {
		defaults[r.Name] = r.Default
	}

	var combos []types.Params
	for i, r := range space {
		for _, v := range grid[i] {
			combo := defaults.Clone()
			combo[r.Name] = v
			combos = append(combos, combo)
		}
	}
	return combos
}
