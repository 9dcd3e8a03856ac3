package render

import (
	"github.com/GaryBoone/GoStats/stats"
	"github.com/sitecairn/lidarterrain/raster"
)

// Summary is the descriptive-statistics block the decorated image's
// stats panel and the build report both draw from.
type Summary struct {
	Count            int
	Mean             float64
	StdDev           float64
	Min, Max         float64
}

// Describe runs a single Welford pass over g's valid cells using
// GoStats' running accumulator, avoiding a second materialized copy of
// the values slice percentileStretch already built.
func Describe(g *raster.Grid) Summary {
	var acc stats.Stats
	min, max := 0.0, 0.0
	first := true
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if g.IsNoData(row, col) {
				continue
			}
			v := g.At(row, col)
			acc.Update(v)
			if first {
				min, max = v, v
				first = false
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	if first {
		return Summary{}
	}
	return Summary{
		Count:  int(acc.Count()),
		Mean:   acc.Mean(),
		StdDev: acc.PopulationStandardDeviation(),
		Min:    min,
		Max:    max,
	}
}
