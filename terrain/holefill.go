package terrain

import (
	"math"

	"github.com/sitecairn/lidarterrain/raster"
)

// HoleFillParams controls the distance-bounded IDW inpaint that follows
// DTM rasterization (§4.4).
type HoleFillParams struct {
	MaxRadiusPixels int // default 100
	Passes          int // default 2
	IDWPower        float64
}

// DefaultHoleFillParams returns the spec's documented defaults.
func DefaultHoleFillParams() HoleFillParams {
	return HoleFillParams{MaxRadiusPixels: 100, Passes: 2, IDWPower: 2.0}
}

// FillHoles inpaints g's NoData cells in place using inverse-distance
// weighting over valid cells within MaxRadiusPixels, repeated Passes
// times so newly filled cells can themselves seed the next pass's
// neighbors (closing larger gaps gradually). It never fills a cell that
// has no valid neighbor within the search radius: those stay NoData,
// since the inpaint must never cross the outer boundary of the valid
// region (a cell entirely surrounded by NoData out to the radius is
// outside the cloud's coverage, not a hole within it).
func FillHoles(g *raster.Grid, params HoleFillParams) {
	if params.MaxRadiusPixels <= 0 {
		params.MaxRadiusPixels = 100
	}
	if params.Passes <= 0 {
		params.Passes = 2
	}
	if params.IDWPower <= 0 {
		params.IDWPower = 2.0
	}
	for pass := 0; pass < params.Passes; pass++ {
		filled := fillPass(g, params)
		if filled == 0 {
			break
		}
	}
}

func fillPass(g *raster.Grid, params HoleFillParams) int {
	type patch struct {
		row, col int
		value    float64
	}
	var patches []patch
	r := params.MaxRadiusPixels
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if !g.IsNoData(row, col) {
				continue
			}
			var weightSum, valueSum float64
			found := false
			for dr := -r; dr <= r; dr++ {
				nr := row + dr
				if nr < 0 || nr >= g.H {
					continue
				}
				for dc := -r; dc <= r; dc++ {
					nc := col + dc
					if nc < 0 || nc >= g.W {
						continue
					}
					if dr == 0 && dc == 0 {
						continue
					}
					dist := math.Hypot(float64(dr), float64(dc))
					if dist > float64(r) {
						continue
					}
					if g.IsNoData(nr, nc) {
						continue
					}
					w := 1.0 / math.Pow(dist, params.IDWPower)
					weightSum += w
					valueSum += w * g.At(nr, nc)
					found = true
				}
			}
			if found && weightSum > 0 {
				patches = append(patches, patch{row, col, valueSum / weightSum})
			}
		}
	}
	for _, p := range patches {
		g.Set(p.row, p.col, p.value)
	}
	return len(patches)
}
