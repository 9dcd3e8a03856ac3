package visualize

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sitecairn/lidarterrain/raster"
)

// FilterType selects the smoothing kernel LRM subtracts from the DTM.
type FilterType string

const (
	FilterUniform  FilterType = "uniform"
	FilterGaussian FilterType = "gaussian"
)

// LRMParams controls Local Relief Model computation (§4.7).
type LRMParams struct {
	WindowSize    int // pixels; 0 with AutoSizing means "derive from pixel size"
	AutoSizing    bool
	FilterType    FilterType
	Enhanced      bool
	PercentileLow, PercentileHigh float64 // defaults 2.0, 98.0
}

// DefaultLRMParams returns the spec's documented defaults: auto-sized
// uniform filter, no enhanced normalization.
func DefaultLRMParams() LRMParams {
	return LRMParams{AutoSizing: true, FilterType: FilterUniform, PercentileLow: 2.0, PercentileHigh: 98.0}
}

// AutoWindowSize derives a window size in pixels from a grid's pixel
// size in meters, per §4.7's documented lookup table.
func AutoWindowSize(pixelSizeMeters float64) int {
	switch {
	case pixelSizeMeters <= 0.5:
		return 61
	case pixelSizeMeters <= 1.0:
		return 31
	case pixelSizeMeters <= 2.0:
		return 21
	default:
		return 11
	}
}

// LRM computes DTM - smooth(DTM). The smoother treats NoData as absent
// and normalizes by the count of valid neighbors, requiring >= 50% valid
// coverage in the window (otherwise the output cell is NoData), per
// §4.7.
func LRM(dtm *raster.Grid, params LRMParams) *raster.Grid {
	windowSize := params.WindowSize
	if params.AutoSizing && windowSize <= 0 {
		windowSize = AutoWindowSize(dtm.Sx)
	}
	if windowSize <= 0 {
		windowSize = 11
	}
	if windowSize%2 == 0 {
		windowSize++
	}
	radius := windowSize / 2

	smoothed := smooth(dtm, radius, params.FilterType)
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			if dtm.IsNoData(row, col) || smoothed.IsNoData(row, col) {
				continue
			}
			out.Set(row, col, dtm.At(row, col)-smoothed.At(row, col))
		}
	}
	if params.Enhanced {
		out = enhancedNormalize(out, params.PercentileLow, params.PercentileHigh)
	}
	return out
}

func smooth(dtm *raster.Grid, radius int, filter FilterType) *raster.Grid {
	out := raster.NewGrid(dtm.Grid, raster.Float32)
	sigma := float64(2*radius+1) / 6
	minValid := ((2*radius+1)*(2*radius+1) + 1) / 2 // at least half the window
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			var weightSum, valueSum float64
			var valid int
			for dr := -radius; dr <= radius; dr++ {
				nr := row + dr
				if nr < 0 || nr >= dtm.H {
					continue
				}
				for dc := -radius; dc <= radius; dc++ {
					nc := col + dc
					if nc < 0 || nc >= dtm.W {
						continue
					}
					if dtm.IsNoData(nr, nc) {
						continue
					}
					valid++
					w := 1.0
					if filter == FilterGaussian {
						w = gaussianWeight(float64(dr), float64(dc), sigma)
					}
					weightSum += w
					valueSum += w * dtm.At(nr, nc)
				}
			}
			if valid < minValid || weightSum == 0 {
				continue
			}
			out.Set(row, col, valueSum/weightSum)
		}
	}
	return out
}

func gaussianWeight(dr, dc, sigma float64) float64 {
	return math.Exp(-(dr*dr + dc*dc) / (2 * sigma * sigma))
}

// enhancedNormalize clips lrm's valid values at the (low, high)
// percentiles of their own distribution and scales symmetrically to
// [-1, 1] using max(|P_low|, |P_high|), per §4.7's enhanced-normalization
// option.
func enhancedNormalize(lrm *raster.Grid, low, high float64) *raster.Grid {
	if low <= 0 {
		low = 2.0
	}
	if high <= 0 {
		high = 98.0
	}
	values := lrm.ValidValues()
	if len(values) == 0 {
		return lrm
	}
	pLow := percentile(values, low)
	pHigh := percentile(values, high)
	scale := pHigh
	if -pLow > scale {
		scale = -pLow
	}
	if scale <= 0 {
		return lrm
	}

	out := lrm.Clone()
	for row := 0; row < out.H; row++ {
		for col := 0; col < out.W; col++ {
			if out.IsNoData(row, col) {
				continue
			}
			v := out.At(row, col)
			if v < pLow {
				v = pLow
			} else if v > pHigh {
				v = pHigh
			}
			out.Set(row, col, v/scale)
		}
	}
	return out
}

// percentile returns the p-th percentile (0-100) of values via gonum's
// empirical quantile estimator, the same one render's percentile-stretch
// uses, on a sorted copy since stat.Quantile requires ascending input.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}
