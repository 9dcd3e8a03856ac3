package derive

import (
	"math"

	"github.com/sitecairn/lidarterrain/raster"
)

// LocalParams controls TPI's 3x3-or-larger neighborhood; TRI and
// roughness take no parameters and always use a 3x3 window. MinValidFraction gates the "mean of valid"
// relaxation: when it is 0 (the default, strict mode), any NoData
// neighbor makes the center NoData; set > 0 to allow partial coverage.
type LocalParams struct {
	InnerRadius, OuterRadius int
	MinValidFraction         float64
}

// DefaultTPIParams is the spec's default TPI neighborhood: square 3x3
// (r_i=0, r_o=1), strict NoData policy.
func DefaultTPIParams() LocalParams {
	return LocalParams{InnerRadius: 0, OuterRadius: 1, MinValidFraction: 0}
}

// TPI computes the Topographic Position Index: cell elevation minus the
// mean elevation of its neighborhood (§4.5). A NoData neighbor makes the
// center NoData unless params.MinValidFraction is set and enough valid
// neighbors remain.
func TPI(dtm *raster.Grid, params LocalParams) *raster.Grid {
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			if dtm.IsNoData(row, col) {
				continue
			}
			w := annularWindow(dtm, row, col, params.InnerRadius, params.OuterRadius)
			if !acceptWindow(w, params.MinValidFraction) {
				continue
			}
			out.Set(row, col, dtm.At(row, col)-w.Mean())
		}
	}
	return out
}

// TRI computes the Terrain Ruggedness Index: mean absolute elevation
// difference between the center cell and each 3x3 neighbor (§4.5).
func TRI(dtm *raster.Grid) *raster.Grid {
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			if dtm.IsNoData(row, col) {
				continue
			}
			w := NewWindow(dtm, row, col, 1)
			if len(w.Values) == 0 {
				continue
			}
			center := dtm.At(row, col)
			var sum float64
			for _, v := range w.Values {
				sum += math.Abs(v - center)
			}
			out.Set(row, col, sum/float64(len(w.Values)))
		}
	}
	return out
}

// Roughness computes max-min elevation within a 3x3 window (§4.5).
func Roughness(dtm *raster.Grid) *raster.Grid {
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			if dtm.IsNoData(row, col) {
				continue
			}
			w := NewWindow(dtm, row, col, 1)
			if len(w.Values) == 0 {
				continue
			}
			min, max := w.MinMax()
			center := dtm.At(row, col)
			if center < min {
				min = center
			}
			if center > max {
				max = center
			}
			out.Set(row, col, max-min)
		}
	}
	return out
}

// annularWindow scans the square window out to outerRadius, excluding
// cells within innerRadius (Chebyshev distance) of the center — the
// general form of which 3x3-square TPI (innerRadius=0) is a special
// case.
func annularWindow(g *raster.Grid, row, col, innerRadius, outerRadius int) Window {
	w := Window{Complete: true}
	for dr := -outerRadius; dr <= outerRadius; dr++ {
		nr := row + dr
		for dc := -outerRadius; dc <= outerRadius; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			// Square annulus: exclude the inner (2*innerRadius+1)^2 square,
			// matching the spec's default square-neighborhood TPI.
			if abs(dr) <= innerRadius && abs(dc) <= innerRadius {
				continue
			}
			nc := col + dc
			if nr < 0 || nr >= g.H || nc < 0 || nc >= g.W {
				w.Complete = false
				w.Total++
				continue
			}
			w.Total++
			if g.IsNoData(nr, nc) {
				w.Complete = false
				continue
			}
			w.Values = append(w.Values, g.At(nr, nc))
		}
	}
	return w
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// acceptWindow reports whether w has enough valid coverage to compute a
// derivative from: strict (minValidFraction<=0) requires completeness;
// otherwise w's valid fraction must meet the threshold.
func acceptWindow(w Window, minValidFraction float64) bool {
	if minValidFraction <= 0 {
		return w.Complete
	}
	return w.ValidFraction() >= minValidFraction
}
