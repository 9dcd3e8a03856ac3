package footprint

import (
	"fmt"

	"github.com/sitecairn/lidarterrain/raster"
)

// DefaultDensityThreshold is the default minimum points/cell for a cell
// to be considered valid (§3 ValidityMask).
const DefaultDensityThreshold = 2.0

// Mask thresholds a density raster into a 0/1 validity mask: cell = 1 iff
// density >= threshold. The result shares density's grid geometry exactly,
// per the ValidityMask invariant.
func Mask(density *raster.Grid, threshold float64) (*raster.Grid, error) {
	if density == nil {
		return nil, fmt.Errorf("footprint: invariant_violation: nil density raster")
	}
	mask := raster.NewGrid(density.Grid, raster.Byte)
	for row := 0; row < density.H; row++ {
		for col := 0; col < density.W; col++ {
			if density.IsNoData(row, col) {
				mask.MarkNoData(row, col)
				continue
			}
			v := density.At(row, col)
			if v >= threshold {
				mask.Set(row, col, 1)
			} else {
				mask.Set(row, col, 0)
			}
		}
	}
	return mask, nil
}

// Coverage reports the fraction of non-NoData cells in mask that are
// valid (value 1), used by the build report and by tests asserting the
// validity-mask-coverage scenario (S1).
func Coverage(mask *raster.Grid) float64 {
	var valid, total int
	for row := 0; row < mask.H; row++ {
		for col := 0; col < mask.W; col++ {
			if mask.IsNoData(row, col) {
				continue
			}
			total++
			if mask.At(row, col) == 1 {
				valid++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(valid) / float64(total)
}
