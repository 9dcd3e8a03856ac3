package footprint

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/sitecairn/lidarterrain/raster"
)

// thresholdFunctions are the govaluate.ExpressionFunctions a
// MaskThresholdExpr may call, mirroring the small "mean/max over the
// current raster" vocabulary operators need to express a threshold
// relative to a region's own density distribution instead of a bare
// constant.
func thresholdFunctions(density *raster.Grid) map[string]govaluate.ExpressionFunction {
	values := density.ValidValues()
	return map[string]govaluate.ExpressionFunction{
		"mean": func(args ...interface{}) (interface{}, error) {
			if len(values) == 0 {
				return 0.0, nil
			}
			var sum float64
			for _, v := range values {
				sum += v
			}
			return sum / float64(len(values)), nil
		},
		"max": func(args ...interface{}) (interface{}, error) {
			var max float64
			for _, v := range values {
				if v > max {
					max = v
				}
			}
			return max, nil
		},
	}
}

// ResolveThreshold evaluates expr (e.g. "mean()*0.5") against density's
// own distribution via govaluate, falling back to fallback when expr is
// empty. A non-numeric or unparseable expression is an error rather than
// a silent fallback, since an operator-supplied expression that never
// runs is worse than one that never existed.
func ResolveThreshold(expr string, density *raster.Grid, fallback float64) (float64, error) {
	if expr == "" {
		return fallback, nil
	}
	evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(expr, thresholdFunctions(density))
	if err != nil {
		return 0, fmt.Errorf("footprint: parsing mask threshold expression %q: %w", expr, err)
	}
	result, err := evaluable.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("footprint: evaluating mask threshold expression %q: %w", expr, err)
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("footprint: mask threshold expression %q did not evaluate to a number, got %T", expr, result)
	}
	return v, nil
}
