package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

func TestGridSearchFindsMaximum(t *testing.T) {
	space := []types.ParamRange{
		{Name: "x", Min: 0, Max: 10, Step: 1},
		{Name: "y", Min: 0, Max: 10, Step: 1},
	}

	// Concave objective with a unique maximum at (3, 7).
	objective := func(ctx context.Context, p types.Params) (float64, error) {
		return -math.Pow(p["x"]-3, 2) - math.Pow(p["y"]-7, 2), nil
	}

	o := NewOptimizer(zap.NewNop(), Config{Workers: 4})
	result, err := o.GridSearch(context.Background(), space, objective)
	if err != nil {
		t.Fatalf("GridSearch failed: %v", err)
	}

	if result.BestParams["x"] != 3 || result.BestParams["y"] != 7 {
		t.Errorf("expected best at (3, 7), got (%v, %v)",
			result.BestParams["x"], result.BestParams["y"])
	}
	if result.BestScore != 0 {
		t.Errorf("expected best score 0, got %v", result.BestScore)
	}
	if len(result.Evaluations) != 121 {
		t.Errorf("expected 121 evaluations, got %d", len(result.Evaluations))
	}
}

func TestGridSearchSingleAxis(t *testing.T) {
	space := []types.ParamRange{
		{Name: "a", Min: 1, Max: 5, Step: 1, Default: 3},
		{Name: "b", Min: 10, Max: 30, Step: 10, Default: 20},
	}

	var offAxis int
	objective := func(ctx context.Context, p types.Params) (float64, error) {
		if p["a"] != 3 && p["b"] != 20 {
			offAxis++
		}
		return p["a"] + p["b"], nil
	}

	o := NewOptimizer(zap.NewNop(), Config{SingleAxis: true, Workers: 1})
	result, err := o.GridSearch(context.Background(), space, objective)
	if err != nil {
		t.Fatalf("GridSearch failed: %v", err)
	}

	// 5 values on a plus 3 values on b, never both off default.
	if len(result.Evaluations) != 8 {
		t.Errorf("expected 8 evaluations, got %d", len(result.Evaluations))
	}
	if offAxis != 0 {
		t.Errorf("%d combinations varied both axes", offAxis)
	}
	if result.BestParams["a"] != 3 || result.BestParams["b"] != 30 {
		t.Errorf("expected best at (3, 30), got (%v, %v)",
			result.BestParams["a"], result.BestParams["b"])
	}
}

func TestGridSearchInvalidSpace(t *testing.T) {
	cases := []struct {
		name  string
		space []types.ParamRange
	}{
		{"empty", nil},
		{"zero step", []types.ParamRange{{Name: "x", Min: 0, Max: 1, Step: 0}}},
		{"inverted range", []types.ParamRange{{Name: "x", Min: 2, Max: 1, Step: 1}}},
	}

	o := NewOptimizer(zap.NewNop(), Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.GridSearch(context.Background(), tc.space, func(context.Context, types.Params) (float64, error) {
				return 0, nil
			})
			var invalid *types.InvalidParameterError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidParameterError, got %v", err)
			}
		})
	}
}

func TestGridSearchSkipsFailedEvaluations(t *testing.T) {
	space := []types.ParamRange{{Name: "x", Min: 0, Max: 4, Step: 1}}

	objective := func(ctx context.Context, p types.Params) (float64, error) {
		if p["x"] == 2 {
			return 0, fmt.Errorf("degenerate combination")
		}
		return p["x"], nil
	}

	o := NewOptimizer(zap.NewNop(), Config{Workers: 2})
	result, err := o.GridSearch(context.Background(), space, objective)
	if err != nil {
		t.Fatalf("GridSearch failed: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped combination, got %d", result.Skipped)
	}
	if result.BestParams["x"] != 4 {
		t.Errorf("expected best x=4, got %v", result.BestParams["x"])
	}
}

func TestGridSearchAllFailed(t *testing.T) {
	space := []types.ParamRange{{Name: "x", Min: 0, Max: 2, Step: 1}}

	o := NewOptimizer(zap.NewNop(), Config{})
	_, err := o.GridSearch(context.Background(), space, func(context.Context, types.Params) (float64, error) {
		return 0, fmt.Errorf("always fails")
	})
	if !errors.Is(err, types.ErrNoSuccessfulItems) {
		t.Fatalf("expected ErrNoSuccessfulItems, got %v", err)
	}
}

func TestGridValuesCountsExactly(t *testing.T) {
	grid, err := gridValues([]types.ParamRange{{Name: "x", Min: 0.1, Max: 0.3, Step: 0.1}})
	if err != nil {
		t.Fatalf("gridValues failed: %v", err)
	}
	if len(grid[0]) != 3 {
		t.Fatalf("expected 3 axis values, got %d (%v)", len(grid[0]), grid[0])
	}
}
