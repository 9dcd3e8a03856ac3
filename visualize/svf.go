// Package visualize implements the two advanced derivatives that build
// on the topographic derivatives in derive: Sky-View Factor (§4.6) and
// Local Relief Model (§4.7).
package visualize

import (
	"math"

	"github.com/sitecairn/lidarterrain/raster"
)

// SVFParams controls Sky-View Factor computation.
type SVFParams struct {
	NumDirections   int // default 16
	MaxRadiusCells  int // default 10
	NoiseReductionPasses int
}

// DefaultSVFParams returns the spec's documented defaults.
func DefaultSVFParams() SVFParams {
	return SVFParams{NumDirections: 16, MaxRadiusCells: 10}
}

// SVF computes the Sky-View Factor for every cell of dtm: for each of
// NumDirections azimuths, a ray is cast out to MaxRadiusCells, tracking
// the steepest horizon angle encountered; the cell's SVF is the mean
// over directions of the open-sky fraction implied by that horizon
// angle. A NoData cell along a ray terminates that ray early, using
// whatever partial horizon angle it has accumulated so far (§4.6). A
// cell where fewer than NumDirections/2 rays could be evaluated at all
// (immediately blocked by the grid edge) is NoData.
func SVF(dtm *raster.Grid, params SVFParams) *raster.Grid {
	if params.NumDirections <= 0 {
		params.NumDirections = 16
	}
	if params.MaxRadiusCells <= 0 {
		params.MaxRadiusCells = 10
	}
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			if dtm.IsNoData(row, col) {
				continue
			}
			v, ok := svfAtCell(dtm, row, col, params)
			if ok {
				out.Set(row, col, v)
			}
		}
	}
	if params.NoiseReductionPasses > 0 {
		out = smoothByteSafe(out, params.NoiseReductionPasses)
	}
	return out
}

func svfAtCell(dtm *raster.Grid, row, col int, params SVFParams) (float64, bool) {
	z0 := dtm.At(row, col)
	usable := 0
	var sum float64
	for d := 0; d < params.NumDirections; d++ {
		theta := 2 * math.Pi * float64(d) / float64(params.NumDirections)
		dx, dy := math.Cos(theta), math.Sin(theta)
		maxAngle := 0.0 // radians above horizontal
		reachedAny := false
		for step := 1; step <= params.MaxRadiusCells; step++ {
			r := row + int(math.Round(dy*float64(step)))
			c := col + int(math.Round(dx*float64(step)))
			if r < 0 || r >= dtm.H || c < 0 || c >= dtm.W {
				break
			}
			if dtm.IsNoData(r, c) {
				// Ray terminates here; keep the partial horizon angle.
				break
			}
			reachedAny = true
			dist := float64(step) * math.Hypot(dtm.Sx, dtm.Sy) / math.Sqrt2
			angle := math.Atan2(dtm.At(r, c)-z0, dist)
			if angle > maxAngle {
				maxAngle = angle
			}
		}
		if !reachedAny {
			continue
		}
		usable++
		sum += 1 - math.Sin(maxAngle)
	}
	if usable < params.NumDirections/2 {
		return 0, false
	}
	return sum / float64(usable), true
}

// smoothByteSafe applies a cheap 3x3 mean-filter noise-reduction pass,
// NoData-aware, used for SVF's optional noise-reduction passes.
func smoothByteSafe(g *raster.Grid, passes int) *raster.Grid {
	cur := g
	for p := 0; p < passes; p++ {
		next := raster.NewGrid(cur.Grid, raster.Float32)
		for row := 0; row < cur.H; row++ {
			for col := 0; col < cur.W; col++ {
				if cur.IsNoData(row, col) {
					continue
				}
				var sum float64
				var n int
				for dr := -1; dr <= 1; dr++ {
					nr := row + dr
					if nr < 0 || nr >= cur.H {
						continue
					}
					for dc := -1; dc <= 1; dc++ {
						nc := col + dc
						if nc < 0 || nc >= cur.W {
							continue
						}
						if cur.IsNoData(nr, nc) {
							continue
						}
						sum += cur.At(nr, nc)
						n++
					}
				}
				if n > 0 {
					next.Set(row, col, sum/float64(n))
				}
			}
		}
		cur = next
	}
	return cur
}
