package derive

import (
	"math"

	"github.com/sitecairn/lidarterrain/raster"
)

// FlatAspectSentinel marks a cell whose slope is below the flatness
// epsilon: aspect is undefined there (§4.5).
const FlatAspectSentinel = -1.0

// FlatSlopeEpsilonDegrees is the default threshold below which a cell is
// considered flat for aspect purposes.
const FlatSlopeEpsilonDegrees = 0.01

// Slope computes slope in degrees from dtm using Horn's method (the
// DESIGN.md §9 decision: Horn's 3x3 Sobel-style kernel, not
// Zevenbergen-Thorne). Edge cells and cells whose 3x3 window contains
// NoData are themselves NoData, per §4.5's strict policy.
func Slope(dtm *raster.Grid) *raster.Grid {
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			dzdx, dzdy, ok := hornGradient(dtm, row, col)
			if !ok {
				continue
			}
			slopeRad := math.Atan(math.Hypot(dzdx, dzdy))
			out.Set(row, col, slopeRad*180/math.Pi)
		}
	}
	return out
}

// Aspect computes compass-direction-of-steepest-descent in degrees
// (0 = north, clockwise), using the same Horn gradient as Slope. Flat
// cells (slope < epsilonDegrees) get FlatAspectSentinel.
func Aspect(dtm *raster.Grid, epsilonDegrees float64) *raster.Grid {
	if epsilonDegrees <= 0 {
		epsilonDegrees = FlatSlopeEpsilonDegrees
	}
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			dzdx, dzdy, ok := hornGradient(dtm, row, col)
			if !ok {
				continue
			}
			slopeDeg := math.Atan(math.Hypot(dzdx, dzdy)) * 180 / math.Pi
			if slopeDeg < epsilonDegrees {
				out.Set(row, col, FlatAspectSentinel)
				continue
			}
			// atan2 gives the direction of steepest descent measured
			// counterclockwise from east; convert it to a compass bearing
			// (0 = north, clockwise).
			aspectRad := math.Atan2(dzdy, -dzdx)
			bearing := 90 - aspectRad*180/math.Pi
			bearing = math.Mod(bearing+360, 360)
			out.Set(row, col, bearing)
		}
	}
	return out
}

// hornGradient computes Horn's (1981) finite-difference partial
// derivatives at (row, col) using the full 3x3 neighborhood, cell size
// from dtm's grid geometry. ok is false if any of the 9 cells (including
// the center) is out of bounds or NoData.
func hornGradient(dtm *raster.Grid, row, col int) (dzdx, dzdy float64, ok bool) {
	if dtm.IsNoData(row, col) {
		return 0, 0, false
	}
	if !NewWindow(dtm, row, col, 1).Complete {
		return 0, 0, false
	}
	z := func(dr, dc int) float64 { return dtm.At(row+dr, col+dc) }
	// Horn's kernel, cell size Sx/Sy from the grid (assumed square in
	// practice; Sx and Sy are used independently to stay correct for
	// non-square pixels).
	dzdx = ((z(-1, 1) + 2*z(0, 1) + z(1, 1)) - (z(-1, -1) + 2*z(0, -1) + z(1, -1))) / (8 * dtm.Sx)
	dzdy = ((z(1, -1) + 2*z(1, 0) + z(1, 1)) - (z(-1, -1) + 2*z(-1, 0) + z(-1, 1))) / (8 * dtm.Sy)
	return dzdx, dzdy, true
}
